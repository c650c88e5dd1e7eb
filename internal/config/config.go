package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. POSEPIPE_WORKERS.
const EnvPrefix = "POSEPIPE"

// Annotator kinds.
const (
	AnnotatorHTTP      = "http"
	AnnotatorSynthetic = "synthetic"
)

// Config is the complete configuration of one run.
type Config struct {
	Workers       int           `yaml:"workers" json:"workers" envconfig:"WORKERS"`
	Routing       string        `yaml:"routing" json:"routing" envconfig:"ROUTING"`
	QueueDepth    int           `yaml:"queue_depth" json:"queue_depth" envconfig:"QUEUE_DEPTH"`
	Window        int           `yaml:"window" json:"window" envconfig:"WINDOW"` // -1 sizes the window from routing, 0 is unbounded
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval" envconfig:"POLL_INTERVAL"`
	ProgressEvery int           `yaml:"progress_every" json:"progress_every" envconfig:"PROGRESS_EVERY"`
	Output        string        `yaml:"output" json:"output" envconfig:"OUTPUT"`
	DB            string        `yaml:"db" json:"db" envconfig:"DB"`
	MetricsAddr   string        `yaml:"metrics_addr" json:"metrics_addr" envconfig:"METRICS_ADDR"`
	Annotator     Annotator     `yaml:"annotator" json:"annotator" envconfig:"ANNOTATOR"`
}

// Annotator configures the annotate capability.
type Annotator struct {
	Kind         string          `yaml:"kind" json:"kind" envconfig:"KIND"`
	Endpoint     string          `yaml:"endpoint" json:"endpoint" envconfig:"ENDPOINT"`
	Timeout      time.Duration   `yaml:"timeout" json:"timeout" envconfig:"TIMEOUT"`
	RetryMax     int             `yaml:"retry_max" json:"retry_max" envconfig:"RETRY_MAX"`
	RetryWaitMin time.Duration   `yaml:"retry_wait_min" json:"retry_wait_min" envconfig:"RETRY_WAIT_MIN"`
	RetryWaitMax time.Duration   `yaml:"retry_wait_max" json:"retry_wait_max" envconfig:"RETRY_WAIT_MAX"`
	RateLimit    float64         `yaml:"rate_limit" json:"rate_limit" envconfig:"RATE_LIMIT"` // Requests per second across all workers, 0 is unlimited
	Draw         bool            `yaml:"draw" json:"draw" envconfig:"DRAW"`
	Delays       []time.Duration `yaml:"delays" json:"delays" envconfig:"DELAYS"`
	Fail         []uint64        `yaml:"fail" json:"fail" envconfig:"FAIL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:       4,
		Routing:       "round_robin",
		QueueDepth:    8,
		Window:        -1,
		PollInterval:  100 * time.Millisecond,
		ProgressEvery: 100,
		Output:        "annotated.tar.zst",
		Annotator: Annotator{
			Kind:         AnnotatorSynthetic,
			Timeout:      30 * time.Second,
			RetryMax:     3,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			Draw:         true,
			Delays:       []time.Duration{},
			Fail:         []uint64{},
		},
	}
}

// Load builds a configuration from defaults, the optional file at path and
// the environment. Validation is left to the caller, which may still apply
// flag overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile builds a configuration from defaults and the file at path only.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := mergeFile(&cfg, path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays POSEPIPE_* environment variables onto cfg. Unset
// variables leave the current value in place.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return mergeCUE(cfg, path, data)
	default:
		return mergeYAML(cfg, path, data)
	}
}

// mergeYAML decodes data over cfg. Unknown keys are rejected.
func mergeYAML(cfg *Config, path string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // Empty file keeps the defaults
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// mergeCUE evaluates a CUE config file and decodes it over cfg. Durations
// are written as strings ("250ms"), as in YAML.
func mergeCUE(cfg *Config, path string, data []byte) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("evaluate %s: %w", path, err)
	}

	// JSON is valid YAML: decoding it with the YAML decoder keeps field
	// names, duration strings and unknown-key checks identical for both.
	out, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return mergeYAML(cfg, path, out)
}
