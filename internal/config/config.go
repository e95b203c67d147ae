// Package config holds the runtime-tunable pump parameters and persists
// them as YAML.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/pump-guard/internal/logic"
)

// ErrValidation wraps rejected writes. The previous configuration is kept.
var ErrValidation = errors.New("config validation failed")

// defaultWetLoadPercent fills files written before the field existed.
const defaultWetLoadPercent = 60

// Default returns the built-in configuration used when nothing valid is
// persisted. Values suit a small 230V centrifugal pump drawing ~2-5A wet.
func Default() logic.Config {
	return logic.Config{
		DryThresholdAmps:     1.0,
		DebounceDuration:     5 * time.Second,
		HysteresisMarginAmps: 0.2,
		MinRunDuration:       30 * time.Second,
		CooldownDuration:     60 * time.Second,
		TelemetryInterval:    15 * time.Second,
		WetLoadPercent:       defaultWetLoadPercent,
	}
}

// file is the on-disk representation.
type file struct {
	DryThresholdAmps     float64       `yaml:"dry_threshold_amps"`
	DebounceDuration     time.Duration `yaml:"debounce_duration"`
	HysteresisMarginAmps float64       `yaml:"hysteresis_margin_amps"`
	MinRunDuration       time.Duration `yaml:"min_run_duration"`
	CooldownDuration     time.Duration `yaml:"cooldown_duration"`
	TelemetryInterval    time.Duration `yaml:"telemetry_interval"`
	WetLoadPercent       float64       `yaml:"wet_load_percent,omitempty"`
}

func toFile(c logic.Config) file {
	return file{
		DryThresholdAmps:     c.DryThresholdAmps,
		DebounceDuration:     c.DebounceDuration,
		HysteresisMarginAmps: c.HysteresisMarginAmps,
		MinRunDuration:       c.MinRunDuration,
		CooldownDuration:     c.CooldownDuration,
		TelemetryInterval:    c.TelemetryInterval,
		WetLoadPercent:       c.WetLoadPercent,
	}
}

func (f file) config() logic.Config {
	c := logic.Config{
		DryThresholdAmps:     f.DryThresholdAmps,
		DebounceDuration:     f.DebounceDuration,
		HysteresisMarginAmps: f.HysteresisMarginAmps,
		MinRunDuration:       f.MinRunDuration,
		CooldownDuration:     f.CooldownDuration,
		TelemetryInterval:    f.TelemetryInterval,
		WetLoadPercent:       f.WetLoadPercent,
	}
	if c.WetLoadPercent == 0 {
		c.WetLoadPercent = defaultWetLoadPercent
	}
	return c
}

// Store is the single writer of the runtime configuration. Accepted writes
// take effect at once; a background writer persists them so the control
// loop never waits on the disk.
type Store struct {
	path string

	mu         sync.RWMutex
	written    *sync.Cond // signalled under mu when persisted advances
	cfg        logic.Config
	version    uint64 // accepted writes
	persisted  uint64 // last version the writer finished
	persistErr error
	closed     bool

	wake chan struct{}
	done chan struct{}
}

// Open loads the configuration persisted at path and starts the writer. A
// missing, unreadable, corrupt or invalid file falls back to Default().
func Open(path string) *Store {
	s := &Store{
		path: path,
		cfg:  Default(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.written = sync.NewCond(&s.mu)

	cfg, err := load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config: %s not found, using defaults", path)
	case err != nil:
		log.Printf("config: %v, using defaults", err)
	default:
		s.cfg = cfg
		log.Printf("config: loaded %s", path)
	}

	go s.writer()
	return s
}

func load(path string) (logic.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return logic.Config{}, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return logic.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := f.config()
	if err := cfg.Validate(); err != nil {
		return logic.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Config returns a snapshot of the current configuration.
func (s *Store) Config() logic.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Apply validates cfg and makes it current. Persistence happens in the
// background; a failed write is logged and reported by Flush and
// PersistErr, and the in-memory value stays in effect. A rejected cfg
// leaves the previous configuration intact.
func (s *Store) Apply(cfg logic.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.version++
	if s.closed {
		s.finish(s.version, s.persist(cfg))
		return nil
	}
	select {
	case s.wake <- struct{}{}:
	default:
		// The writer already has a pending wake-up and reads the latest cfg.
	}
	return nil
}

func (s *Store) writer() {
	defer close(s.done)
	for range s.wake {
		s.mu.RLock()
		cfg, version := s.cfg, s.version
		s.mu.RUnlock()

		err := s.persist(cfg)
		if err != nil {
			log.Printf("config: persist failed: %v", err)
		}

		s.mu.Lock()
		s.finish(version, err)
		s.mu.Unlock()
	}
}

// finish records a completed write. Callers hold mu.
func (s *Store) finish(version uint64, err error) {
	if version > s.persisted {
		s.persisted = version
	}
	s.persistErr = err
	s.written.Broadcast()
}

// Flush waits until every accepted write has been persisted and returns
// the result of the last one.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.persisted < s.version {
		s.written.Wait()
	}
	return s.persistErr
}

// PersistErr returns the result of the most recent write, nil if none
// failed.
func (s *Store) PersistErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistErr
}

// Close flushes pending writes and stops the writer. Later writes are
// persisted inline.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
	s.mu.Unlock()

	<-s.done
	return s.Flush()
}

// persist writes atomically: temp file in the same directory, then rename.
func (s *Store) persist(cfg logic.Config) error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(toFile(cfg))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".pump-config-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Path returns the persistence path.
func (s *Store) Path() string {
	return s.path
}
