package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr         string        // bind address, e.g. ":9092"
	LogDir       string        // logs directory
	LogLevel     string        // debug | info | warn | error
	BaseDir      string        // directory holding one subdirectory per site
	ExcludeDirs  []string      // subdirectory names never treated as sites
	EnvFile      string        // declaration file name inside each site dir
	DomainKey    string        // key of the domain line in EnvFile
	ProbeTimeout time.Duration // per-attempt timeout; the whole probe is capped at 2x
	ChunkSize    int           // max probes in flight
	ChunkPause   time.Duration // pause between chunks
	UserAgent    string
	APIKeys      []string // empty means /debug and /test are open
	TestRPM      int      // per-IP requests/min on /test; 0 disables
	TestBurst    int
}

// fileConfig mirrors Config in the YAML file. Durations are given in ms.
type fileConfig struct {
	Addr           string   `yaml:"addr"`
	LogDir         string   `yaml:"log_dir"`
	LogLevel       string   `yaml:"log_level"`
	BaseDir        string   `yaml:"base_dir"`
	ExcludeDirs    []string `yaml:"exclude_dirs"`
	EnvFile        string   `yaml:"env_file"`
	DomainKey      string   `yaml:"domain_key"`
	ProbeTimeoutMS *int     `yaml:"probe_timeout_ms"`
	ChunkSize      *int     `yaml:"chunk_size"`
	ChunkPauseMS   *int     `yaml:"chunk_pause_ms"`
	UserAgent      string   `yaml:"user_agent"`
	APIKeys        []string `yaml:"api_keys"`
	TestRPM        *int     `yaml:"test_rpm"`
	TestBurst      *int     `yaml:"test_burst"`
}

func Defaults() Config {
	return Config{
		Addr:         ":9092",
		LogDir:       "logs",
		LogLevel:     "info",
		BaseDir:      "/root",
		ExcludeDirs:  []string{"core", "nginx", "amardokan", ".git", "snap", "go"},
		EnvFile:      ".env",
		DomainKey:    "DOMAIN_NAME",
		ProbeTimeout: 5 * time.Second,
		ChunkSize:    20,
		ChunkPause:   100 * time.Millisecond,
		UserAgent:    "SiteMonitor/1.0 (+liveness)",
		TestRPM:      60,
		TestBurst:    10,
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.mergeEnv()
	return cfg, nil
}

// FromEnv is Load without a config file.
func FromEnv() Config {
	cfg := Defaults()
	cfg.mergeEnv()
	return cfg
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Addr, fc.Addr)
	setString(&c.LogDir, fc.LogDir)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.BaseDir, fc.BaseDir)
	setString(&c.EnvFile, fc.EnvFile)
	setString(&c.DomainKey, fc.DomainKey)
	setString(&c.UserAgent, fc.UserAgent)
	if fc.ExcludeDirs != nil {
		c.ExcludeDirs = cleanList(fc.ExcludeDirs)
	}
	if fc.APIKeys != nil {
		c.APIKeys = cleanList(fc.APIKeys)
	}
	if fc.ProbeTimeoutMS != nil && *fc.ProbeTimeoutMS > 0 {
		c.ProbeTimeout = time.Duration(*fc.ProbeTimeoutMS) * time.Millisecond
	}
	if fc.ChunkSize != nil && *fc.ChunkSize > 0 {
		c.ChunkSize = *fc.ChunkSize
	}
	if fc.ChunkPauseMS != nil && *fc.ChunkPauseMS >= 0 {
		c.ChunkPause = time.Duration(*fc.ChunkPauseMS) * time.Millisecond
	}
	if fc.TestRPM != nil && *fc.TestRPM >= 0 {
		c.TestRPM = *fc.TestRPM
	}
	if fc.TestBurst != nil && *fc.TestBurst > 0 {
		c.TestBurst = *fc.TestBurst
	}
	return nil
}

func (c *Config) mergeEnv() {
	setString(&c.Addr, os.Getenv("ADDR"))
	setString(&c.LogDir, os.Getenv("LOG_DIR"))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&c.BaseDir, os.Getenv("BASE_DIR"))
	setString(&c.EnvFile, os.Getenv("ENV_FILE"))
	setString(&c.DomainKey, os.Getenv("DOMAIN_KEY"))
	setString(&c.UserAgent, os.Getenv("USER_AGENT"))

	if v, ok := os.LookupEnv("EXCLUDE_DIRS"); ok {
		c.ExcludeDirs = splitList(v)
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		c.APIKeys = splitList(v)
	}

	if n, ok := envInt("PROBE_TIMEOUT_MS"); ok && n > 0 {
		c.ProbeTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt("CHUNK_SIZE"); ok && n > 0 {
		c.ChunkSize = n
	}
	if n, ok := envInt("CHUNK_PAUSE_MS"); ok && n >= 0 {
		c.ChunkPause = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt("TEST_RPM"); ok && n >= 0 {
		c.TestRPM = n
	}
	if n, ok := envInt("TEST_BURST"); ok && n > 0 {
		c.TestBurst = n
	}
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	return cleanList(strings.Split(v, ","))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
