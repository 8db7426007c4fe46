// Package config loads coordinator and worker settings. Defaults are
// overlaid by an optional YAML file, which is overlaid by environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/storage"
	"github.com/dreamware/distsort/internal/trust"
)

// Identity modes for CoordinatorConfig.IdentityMode.
const (
	IdentityHost = "host"
	IdentityAddr = "addr"
)

// DefaultPort is the coordinator's listening port.
const DefaultPort = 5000

// TrustConfig selects the trust table backend and its bounds.
type TrustConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Floor   int    `yaml:"floor"`
	Ceiling int    `yaml:"ceiling"`
	Default int    `yaml:"default"`
}

// Bounds returns the score bounds as a trust.Config.
func (t TrustConfig) Bounds() trust.Config {
	return trust.Config{Floor: t.Floor, Ceiling: t.Ceiling, Default: t.Default}
}

// CoordinatorConfig holds everything the coordinator binary needs.
type CoordinatorConfig struct {
	Addr            string        `yaml:"addr"`
	IdentityMode    string        `yaml:"identity_mode"`
	DatasetPath     string        `yaml:"dataset_path"`
	OutputPath      string        `yaml:"output_path"`
	TimingPath      string        `yaml:"timing_path"`
	LogFile         string        `yaml:"log_file"`
	Trust           TrustConfig   `yaml:"trust"`
	AcceptTimeout   time.Duration `yaml:"accept_timeout"`
	AcceptPoll      time.Duration `yaml:"accept_poll"`
	IOTimeout       time.Duration `yaml:"io_timeout"`
	ResultTimeout   time.Duration `yaml:"result_timeout"`
	ExpectedWorkers int           `yaml:"expected_workers"` // 0 asks on stdin
	MaxFrameSize    int           `yaml:"max_frame_size"`
}

// WorkerConfig holds everything the worker binary needs.
type WorkerConfig struct {
	ServerHost      string        `yaml:"server_host"` // empty asks on stdin
	ProofDir        string        `yaml:"proof_dir"`   // empty disables proof files
	LogFile         string        `yaml:"log_file"`
	IOTimeout       time.Duration `yaml:"io_timeout"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	ServerPort      int           `yaml:"server_port"`
	MaxRetries      int           `yaml:"max_retries"`
	MaxIdleTimeouts int           `yaml:"max_idle_timeouts"`
	MaxFrameSize    int           `yaml:"max_frame_size"`
}

// Addr returns the coordinator address the worker dials.
func (w WorkerConfig) Addr() string {
	return net.JoinHostPort(w.ServerHost, strconv.Itoa(w.ServerPort))
}

// DefaultCoordinator returns the coordinator defaults.
func DefaultCoordinator() CoordinatorConfig {
	return CoordinatorConfig{
		Addr:          fmt.Sprintf("0.0.0.0:%d", DefaultPort),
		IdentityMode:  IdentityHost,
		DatasetPath:   "data/uniform.txt",
		OutputPath:    "data/sorted_data.txt",
		TimingPath:    "data/sort_timing.txt",
		AcceptTimeout: 60 * time.Second,
		AcceptPoll:    10 * time.Second,
		IOTimeout:     15 * time.Second,
		ResultTimeout: 10 * time.Minute,
		MaxFrameSize:  cluster.DefaultMaxFrameSize,
		Trust: TrustConfig{
			Backend: storage.BackendJSON,
			Path:    "data/trust_scores.json",
			Floor:   1,
			Ceiling: 3,
			Default: 1,
		},
	}
}

// DefaultWorker returns the worker defaults.
func DefaultWorker() WorkerConfig {
	return WorkerConfig{
		ServerPort:   DefaultPort,
		ProofDir:     "worker_chunks",
		IOTimeout:    15 * time.Second,
		RetryBackoff: 5 * time.Second,
		MaxRetries:   3,
		MaxFrameSize: cluster.DefaultMaxFrameSize,
	}
}

// LoadCoordinator builds the coordinator config from defaults, the YAML
// file at path (skipped when empty) and the environment.
func LoadCoordinator(path string) (CoordinatorConfig, error) {
	cfg := DefaultCoordinator()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadWorker builds the worker config from defaults, the YAML file at path
// (skipped when empty) and the environment.
func LoadWorker(path string) (WorkerConfig, error) {
	cfg := DefaultWorker()
	if err := loadFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects unusable coordinator settings.
func (c CoordinatorConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("coordinator address is required")
	}
	if c.AcceptTimeout <= 0 || c.AcceptPoll <= 0 || c.IOTimeout <= 0 {
		return errors.New("accept timeout, accept poll and io timeout must be positive")
	}
	if c.ResultTimeout < 0 {
		return errors.New("result timeout must not be negative")
	}
	if c.ExpectedWorkers < 0 {
		return fmt.Errorf("expected workers must not be negative, got %d", c.ExpectedWorkers)
	}
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max frame size must not be negative, got %d", c.MaxFrameSize)
	}
	if _, err := c.Identify(); err != nil {
		return err
	}
	switch strings.ToLower(c.Trust.Backend) {
	case storage.BackendMemory:
	case storage.BackendJSON, storage.BackendLevelDB:
		if c.Trust.Path == "" {
			return fmt.Errorf("trust backend %s requires a path", c.Trust.Backend)
		}
	default:
		return fmt.Errorf("unknown trust backend %q", c.Trust.Backend)
	}
	return c.Trust.Bounds().Validate()
}

// Identify returns the identity function selected by IdentityMode.
func (c CoordinatorConfig) Identify() (cluster.IdentityFunc, error) {
	switch strings.ToLower(c.IdentityMode) {
	case IdentityHost, "":
		return cluster.HostIdentity, nil
	case IdentityAddr:
		return cluster.AddrIdentity, nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", c.IdentityMode)
	}
}

// Validate rejects unusable worker settings.
func (w WorkerConfig) Validate() error {
	if w.ServerPort <= 0 || w.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", w.ServerPort)
	}
	if w.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", w.MaxRetries)
	}
	if w.IOTimeout <= 0 {
		return errors.New("io timeout must be positive")
	}
	if w.RetryBackoff < 0 || w.MaxIdleTimeouts < 0 || w.MaxFrameSize < 0 {
		return errors.New("retry backoff and limits must not be negative")
	}
	return nil
}

func (c *CoordinatorConfig) applyEnv() error {
	e := envReader{}
	e.str("COORDINATOR_ADDR", &c.Addr)
	e.str("IDENTITY_MODE", &c.IdentityMode)
	e.str("DATASET_PATH", &c.DatasetPath)
	e.str("OUTPUT_PATH", &c.OutputPath)
	e.str("TIMING_PATH", &c.TimingPath)
	e.str("LOG_FILE", &c.LogFile)
	e.str("TRUST_BACKEND", &c.Trust.Backend)
	e.str("TRUST_PATH", &c.Trust.Path)
	e.integer("EXPECTED_WORKERS", &c.ExpectedWorkers)
	e.integer("MAX_FRAME_SIZE", &c.MaxFrameSize)
	e.duration("ACCEPT_TIMEOUT", &c.AcceptTimeout)
	e.duration("ACCEPT_POLL", &c.AcceptPoll)
	e.duration("IO_TIMEOUT", &c.IOTimeout)
	e.duration("RESULT_TIMEOUT", &c.ResultTimeout)
	return e.err
}

func (w *WorkerConfig) applyEnv() error {
	e := envReader{}
	e.str("SERVER_HOST", &w.ServerHost)
	e.str("PROOF_DIR", &w.ProofDir)
	e.str("LOG_FILE", &w.LogFile)
	e.integer("SERVER_PORT", &w.ServerPort)
	e.integer("MAX_RETRIES", &w.MaxRetries)
	e.integer("MAX_IDLE_TIMEOUTS", &w.MaxIdleTimeouts)
	e.integer("MAX_FRAME_SIZE", &w.MaxFrameSize)
	e.duration("IO_TIMEOUT", &w.IOTimeout)
	e.duration("RETRY_BACKOFF", &w.RetryBackoff)
	return e.err
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if doc.Kind == 0 {
		return nil
	}
	secondsToDurations(&doc, reflect.TypeOf(out).Elem())
	if data, err = yaml.Marshal(&doc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurations rewrites plain numbers under time.Duration fields of t
// into seconds ("60" becomes "60s"), so durations accept the same forms in
// YAML as in the environment.
func secondsToDurations(n *yaml.Node, t reflect.Type) {
	if n.Kind == yaml.DocumentNode {
		for _, c := range n.Content {
			secondsToDurations(c, t)
		}
		return
	}
	if n.Kind != yaml.MappingNode || t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		f, ok := fieldByTag(t, key.Value)
		if !ok {
			continue
		}
		switch {
		case f.Type == durationType && val.Kind == yaml.ScalarNode:
			if tag := val.ShortTag(); tag == "!!int" || tag == "!!float" {
				val.Value += "s"
				val.Tag = "!!str"
			}
		case f.Type.Kind() == reflect.Struct:
			secondsToDurations(val, f.Type)
		}
	}
}

// fieldByTag finds the field of t whose yaml tag name is name.
func fieldByTag(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// envReader applies environment overrides, keeping the first parse error.
type envReader struct {
	err error
}

func (e *envReader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("env %s: %w", key, err)
		return
	}
	*dst = n
}

// duration accepts Go durations ("90s", "1m") or plain seconds ("90").
func (e *envReader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" || e.err != nil {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("env %s: %w", key, err)
		return
	}
	*dst = d
}
