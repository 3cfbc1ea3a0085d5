// Package config loads ptyhost's configuration file. YAML and TOML are both
// accepted; keys left out of the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "~/.ptyhost/config.yml"
	DefaultSocketPath = "~/.ptyhost/pty.sock"
)

type Config struct {
	Socket         string
	Listen         string
	AllowedOrigins []string
	Shell          string
	ShellArgs      []string
	WorkDir        string
	Env            map[string]string
	Term           string
	GracePeriod    time.Duration
	ReadBuffer     int
	EventBuffer    int
	TraceFile      string
	LogLevel       string
}

func Default() Config {
	return Config{
		Socket:      DefaultSocketPath,
		Term:        pty.DefaultTerm,
		GracePeriod: pty.DefaultGracePeriod,
		ReadBuffer:  pty.DefaultReadBuffer,
		EventBuffer: 1024,
		LogLevel:    "info",
	}
}

type fileConfig struct {
	Socket         string            `toml:"socket" yaml:"socket"`
	Listen         string            `toml:"listen" yaml:"listen"`
	AllowedOrigins []string          `toml:"allowed_origins" yaml:"allowed_origins"`
	Shell          string            `toml:"shell" yaml:"shell"`
	ShellArgs      []string          `toml:"shell_args" yaml:"shell_args"`
	WorkDir        string            `toml:"work_dir" yaml:"work_dir"`
	Env            map[string]string `toml:"env" yaml:"env"`
	Term           string            `toml:"term" yaml:"term"`
	GracePeriod    string            `toml:"grace_period" yaml:"grace_period"`
	ReadBuffer     int               `toml:"read_buffer" yaml:"read_buffer"`
	EventBuffer    int               `toml:"event_buffer" yaml:"event_buffer"`
	TraceFile      string            `toml:"trace_file" yaml:"trace_file"`
	LogLevel       string            `toml:"log_level" yaml:"log_level"`
}

// Load reads the file at path over Default(). A missing file returns the
// defaults together with an error matching fs.ErrNotExist.
func Load(path string) (Config, error) {
	cfg := Default()

	expanded, err := ExpandPath(path)
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(expanded); err != nil {
		return cfg, fmt.Errorf("config load failed (%s): %w", expanded, err)
	}

	var (
		raw     fileConfig
		defined func(string) bool
	)
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".toml":
		raw, defined, err = decodeTOML(expanded)
	case ".yml", ".yaml", "":
		raw, defined, err = decodeYAML(expanded)
	default:
		return cfg, fmt.Errorf("config load failed (%s): unsupported format", expanded)
	}
	if err != nil {
		return cfg, fmt.Errorf("config parse failed (%s): %w", expanded, err)
	}

	if err := apply(&cfg, raw, defined); err != nil {
		return cfg, fmt.Errorf("config parse failed (%s): %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeTOML(path string) (fileConfig, func(string) bool, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fileConfig{}, nil, err
	}
	return raw, func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAML(path string) (fileConfig, func(string) bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fileConfig{}, nil, err
	}
	keys := make(map[string]bool)
	var raw fileConfig
	if len(root.Content) > 0 {
		doc := root.Content[0]
		if doc.Kind != yaml.MappingNode {
			return fileConfig{}, nil, errors.New("top level must be a mapping")
		}
		for i := 0; i+1 < len(doc.Content); i += 2 {
			keys[doc.Content[i].Value] = true
		}
		if err := doc.Decode(&raw); err != nil {
			return fileConfig{}, nil, err
		}
	}
	return raw, func(key string) bool { return keys[key] }, nil
}

func apply(cfg *Config, raw fileConfig, defined func(string) bool) error {
	if defined("socket") {
		cfg.Socket = strings.TrimSpace(raw.Socket)
	}
	if defined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if defined("allowed_origins") {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}
	if defined("shell") {
		cfg.Shell = strings.TrimSpace(raw.Shell)
	}
	if defined("shell_args") {
		cfg.ShellArgs = raw.ShellArgs
	}
	if defined("work_dir") {
		cfg.WorkDir = strings.TrimSpace(raw.WorkDir)
	}
	if defined("env") {
		cfg.Env = raw.Env
	}
	if defined("term") {
		cfg.Term = strings.TrimSpace(raw.Term)
	}
	if defined("grace_period") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.GracePeriod))
		if err != nil {
			return fmt.Errorf("parse grace_period: %w", err)
		}
		cfg.GracePeriod = d
	}
	if defined("read_buffer") {
		cfg.ReadBuffer = raw.ReadBuffer
	}
	if defined("event_buffer") {
		cfg.EventBuffer = raw.EventBuffer
	}
	if defined("trace_file") {
		cfg.TraceFile = strings.TrimSpace(raw.TraceFile)
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Socket) == "" {
		return fmt.Errorf("config missing socket")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative")
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("read_buffer must be positive")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive")
	}
	return nil
}

// EnvList returns Env as sorted KEY=VALUE entries.
func (c Config) EnvList() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Sessions returns the settings shared by every spawned session.
func (c Config) Sessions() (pty.Config, error) {
	dir, err := ExpandPath(c.WorkDir)
	if err != nil {
		return pty.Config{}, err
	}
	return pty.Config{
		Shell:       c.Shell,
		Args:        c.ShellArgs,
		Dir:         dir,
		Env:         c.EnvList(),
		Term:        c.Term,
		GracePeriod: c.GracePeriod,
		ReadBuffer:  c.ReadBuffer,
	}, nil
}
