package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DjordjeVuckovic/index-relay/internal/apperr"
	"github.com/DjordjeVuckovic/index-relay/internal/domain"
	"github.com/DjordjeVuckovic/index-relay/internal/dto"
	"github.com/DjordjeVuckovic/index-relay/internal/reader"
	"github.com/DjordjeVuckovic/index-relay/internal/relay"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModeEvents relays live change events only.
	ModeEvents Mode = "events"
	// ModeSnapshot copies the current collection and stops.
	ModeSnapshot Mode = "snapshot"
	// ModeSync subscribes, copies the collection, then follows live changes.
	ModeSync Mode = "sync"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeEvents, ModeSnapshot, ModeSync:
		return true
	}
	return false
}

// Config holds the pipeline settings. Zero values are replaced by defaults in Validate.
type Config struct {
	Name            string              `yaml:"name"`
	Mode            Mode                `yaml:"mode"`
	Target          domain.Target       `yaml:"target"`
	PageSize        int                 `yaml:"page_size"`
	MaxRecords      int                 `yaml:"max_records"`
	BodyMaxSize     int                 `yaml:"body_max_size"`
	FlushIntervalMs int                 `yaml:"flush_interval_ms"`
	EventKinds      []domain.ChangeKind `yaml:"event_kinds"`
	SkipInvalid     bool                `yaml:"skip_invalid"`
	// ResumeAfter is a snapshot position token reported by /stats.
	ResumeAfter string `yaml:"resume_after"`
}

func DefaultConfig() Config {
	return Config{
		Name:            "relay",
		Mode:            ModeEvents,
		Target:          domain.Target{Type: domain.DefaultTargetType},
		PageSize:        reader.DefaultPageSize,
		BodyMaxSize:     relay.DefaultBodyMaxSize,
		FlushIntervalMs: int(relay.DefaultFlushInterval / time.Millisecond),
		EventKinds:      domain.AllChangeKinds,
	}
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// Validate fills optional fields and reports every invalid setting.
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = "relay"
	}
	if c.Mode == "" {
		c.Mode = ModeEvents
	}
	if c.Target.Type == "" {
		c.Target.Type = domain.DefaultTargetType
	}
	if len(c.EventKinds) == 0 {
		c.EventKinds = domain.AllChangeKinds
	}

	var errs []error
	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("unknown mode %q, expected one of %v", c.Mode, []Mode{ModeEvents, ModeSnapshot, ModeSync}))
	}
	if c.Target.Index == "" {
		errs = append(errs, errors.New("target index is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if c.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("max records must not be negative, got %d", c.MaxRecords))
	}
	if c.BodyMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("body max size must be positive, got %d", c.BodyMaxSize))
	}
	if c.FlushIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("flush interval must be positive, got %dms", c.FlushIntervalMs))
	}
	if _, err := dto.DecodeCursor(c.ResumeAfter); err != nil {
		errs = append(errs, fmt.Errorf("invalid resume position: %w", err))
	}
	for _, k := range c.EventKinds {
		if !k.Valid() {
			errs = append(errs, fmt.Errorf("unknown change kind %q", k))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return apperr.NewValidationWrap("invalid pipeline config", err)
	}
	return nil
}

// LoadYAML decodes r on top of base. Fields missing from the document keep their base value.
func LoadYAML(r io.Reader, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("failed to decode pipeline config: %w", err)
	}
	return cfg, nil
}

// LoadYAMLFile is LoadYAML over the file at path.
func LoadYAMLFile(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, fmt.Errorf("failed to open pipeline config: %w", err)
	}
	defer f.Close()
	return LoadYAML(f, base)
}
