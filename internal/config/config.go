package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pingcap/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of both processes. The coordinator reads the
// coordinator, scanner, health and filesystem sections; a region server
// reads the node section. Both read log.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Health      HealthConfig      `yaml:"health"`
	FileSystem  FileSystemConfig  `yaml:"filesystem"`
	Node        NodeConfig        `yaml:"node"`
	Log         LogConfig         `yaml:"log"`
}

// CoordinatorConfig holds coordinator process settings.
type CoordinatorConfig struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`
}

// ScannerConfig holds catalog scanner settings.
type ScannerConfig struct {
	RootRescanInterval time.Duration `yaml:"root_rescan_interval"`
	MetaRescanInterval time.Duration `yaml:"meta_rescan_interval"`
	// ScanTimeout bounds a single remote region scan.
	ScanTimeout time.Duration `yaml:"scan_timeout"`
}

// HealthConfig holds region server health check settings.
type HealthConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxFailures int           `yaml:"max_failures"`
}

// FileSystemConfig holds filesystem probe settings.
type FileSystemConfig struct {
	// ProbeInterval is the minimum time between two probes.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// NodeConfig holds region server settings.
type NodeConfig struct {
	ID          string   `yaml:"id"`
	Listen      string   `yaml:"listen"`
	Addr        string   `yaml:"addr"`
	Coordinator string   `yaml:"coordinator"`
	Regions     []string `yaml:"regions"`
	// Store is "memory" or "sqlite".
	Store   string `yaml:"store"`
	DataDir string `yaml:"data_dir"`
	// RegisterInterval is how often a registered node announces itself
	// again, so a coordinator that dropped it learns about it.
	RegisterInterval time.Duration `yaml:"register_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	// File, if set, receives the logs instead of stderr and is rotated.
	File string `yaml:"file"`
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Listen:  ":8080",
			DataDir: "data/coordinator",
		},
		Scanner: ScannerConfig{
			RootRescanInterval: time.Minute,
			MetaRescanInterval: time.Minute,
			ScanTimeout:        10 * time.Second,
		},
		Health: HealthConfig{
			Interval:    5 * time.Second,
			Timeout:     2 * time.Second,
			MaxFailures: 3,
		},
		FileSystem: FileSystemConfig{
			ProbeInterval: 10 * time.Second,
		},
		Node: NodeConfig{
			Listen:      ":8081",
			Coordinator: "http://127.0.0.1:8080",
			Store:       StoreMemory,
			DataDir:     "data/node",

			RegisterInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, errors.Annotate(err, "loading config file")
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, errors.Annotate(err, "reading environment")
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.Annotate(err, "validating config")
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Trace(err)
	}
	return errors.Trace(yaml.Unmarshal(data, c))
}

func (c *Config) loadFromEnv() error {
	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"TORUA_LISTEN"}, &c.Coordinator.Listen},
		{[]string{"TORUA_DATA_DIR"}, &c.Coordinator.DataDir},
		{[]string{"TORUA_NODE_ID", "NODE_ID"}, &c.Node.ID},
		{[]string{"TORUA_NODE_LISTEN", "NODE_LISTEN"}, &c.Node.Listen},
		{[]string{"TORUA_NODE_ADDR", "NODE_ADDR"}, &c.Node.Addr},
		{[]string{"TORUA_COORDINATOR", "COORDINATOR_ADDR"}, &c.Node.Coordinator},
		{[]string{"TORUA_NODE_STORE"}, &c.Node.Store},
		{[]string{"TORUA_NODE_DATA_DIR"}, &c.Node.DataDir},
		{[]string{"TORUA_LOG_LEVEL"}, &c.Log.Level},
		{[]string{"TORUA_LOG_FILE"}, &c.Log.File},
	}
	for _, s := range strs {
		if v := getenv(s.keys...); v != "" {
			*s.dst = v
		}
	}

	if v := getenv("TORUA_NODE_REGIONS"); v != "" {
		c.Node.Regions = splitList(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TORUA_ROOT_RESCAN_INTERVAL", &c.Scanner.RootRescanInterval},
		{"TORUA_META_RESCAN_INTERVAL", &c.Scanner.MetaRescanInterval},
		{"TORUA_SCAN_TIMEOUT", &c.Scanner.ScanTimeout},
		{"TORUA_HEALTH_INTERVAL", &c.Health.Interval},
		{"TORUA_HEALTH_TIMEOUT", &c.Health.Timeout},
		{"TORUA_FS_PROBE_INTERVAL", &c.FileSystem.ProbeInterval},
		{"TORUA_NODE_REGISTER_INTERVAL", &c.Node.RegisterInterval},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Annotatef(err, "%s", d.key)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("TORUA_HEALTH_MAX_FAILURES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Annotate(err, "TORUA_HEALTH_MAX_FAILURES")
		}
		c.Health.MaxFailures = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Coordinator.Listen == "" {
		return errors.New("coordinator listen address is required")
	}
	if c.Scanner.RootRescanInterval <= 0 || c.Scanner.MetaRescanInterval <= 0 {
		return errors.Errorf("rescan intervals must be positive: root=%s meta=%s",
			c.Scanner.RootRescanInterval, c.Scanner.MetaRescanInterval)
	}
	if c.Scanner.ScanTimeout < 0 {
		return errors.Errorf("invalid scan timeout: %s", c.Scanner.ScanTimeout)
	}
	if c.Health.Interval <= 0 || c.Health.MaxFailures < 1 {
		return errors.Errorf("invalid health settings: interval=%s max_failures=%d",
			c.Health.Interval, c.Health.MaxFailures)
	}
	if c.Node.RegisterInterval <= 0 {
		return errors.Errorf("invalid node register interval: %s", c.Node.RegisterInterval)
	}
	switch c.Node.Store {
	case StoreMemory, StoreSQLite:
	default:
		return errors.Errorf("unknown node store %q", c.Node.Store)
	}
	c.Node.Coordinator = strings.TrimRight(c.Node.Coordinator, "/")
	return nil
}

// getenv returns the first non-empty value among keys.
func getenv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// splitList splits a region list on semicolons or whitespace. Commas are
// part of region names.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ';' || unicode.IsSpace(r)
	})
}
