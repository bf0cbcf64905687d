package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ptdang/stackboot/internal/logger"
	"github.com/ptdang/stackboot/internal/process"
)

// Stack-level defaults applied when the TOML omits the value.
const (
	DefaultStopGrace       = 5 * time.Second
	DefaultShutdownCeiling = 30 * time.Second
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env      []string        `toml:"env" mapstructure:"env"`
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool            `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *LogConfig      `toml:"log" mapstructure:"log"`
	Health   HealthConfig    `toml:"health" mapstructure:"health"`
	Stop     StopConfig      `toml:"stop" mapstructure:"stop"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Server   ServerConfig    `toml:"server" mapstructure:"server"`
	History  HistoryConfig   `toml:"history" mapstructure:"history"`
	Services []ServiceConfig `toml:"services" mapstructure:"services"`
	Frontend *ServiceConfig  `toml:"frontend" mapstructure:"frontend"`
}

// LogConfig covers both the supervisor's own slog output and the default
// file destinations for child stdout/stderr.
type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// ServiceConfig describes one supervised process in TOML.
type ServiceConfig struct {
	Name      string        `toml:"name" mapstructure:"name"`
	Command   string        `toml:"command" mapstructure:"command"`
	WorkDir   string        `toml:"workdir" mapstructure:"workdir"`
	Env       []string      `toml:"env" mapstructure:"env"`
	HealthURL string        `toml:"health_url" mapstructure:"health_url"`
	Tier      int           `toml:"tier" mapstructure:"tier"`
	StopGrace time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	Log       *LogConfig    `toml:"log" mapstructure:"log"`
}

type HealthConfig struct {
	Interval       time.Duration `toml:"interval" mapstructure:"interval"`
	MaxAttempts    int           `toml:"max_attempts" mapstructure:"max_attempts"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
}

type StopConfig struct {
	Grace   time.Duration `toml:"grace" mapstructure:"grace"`
	Ceiling time.Duration `toml:"ceiling" mapstructure:"ceiling"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Config is the fully resolved configuration handed to the supervisor.
type Config struct {
	Logger    logger.Config
	GlobalEnv []string
	Backends  []process.Spec
	Frontend  process.Spec
	Health    HealthConfig
	Stop      StopConfig
	Metrics   MetricsConfig
	Server    ServerConfig
	History   HistoryConfig
}

// Load reads, validates, and resolves a TOML config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return resolve(&fc)
}

func resolve(fc *FileConfig) (*Config, error) {
	if len(fc.Services) == 0 {
		return nil, fmt.Errorf("config requires at least one [[services]] entry")
	}
	if fc.Frontend == nil {
		return nil, fmt.Errorf("config requires a [frontend] section")
	}

	env, err := mergeEnv(fc)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		GlobalEnv: env,
		Health:    fc.Health,
		Stop:      fc.Stop,
		Metrics:   fc.Metrics,
		Server:    fc.Server,
		History:   fc.History,
	}
	if cfg.Stop.Grace <= 0 {
		cfg.Stop.Grace = DefaultStopGrace
	}
	if cfg.Stop.Ceiling <= 0 {
		cfg.Stop.Ceiling = DefaultShutdownCeiling
	}
	if fc.Log != nil {
		cfg.Logger = logger.Config{
			Slog: logger.SlogConfig{
				Level:  fc.Log.Level,
				Format: logger.Format(fc.Log.Format),
				Color:  fc.Log.Color,
			},
			File: fileConfig(fc.Log),
		}
	}

	seen := make(map[string]struct{}, len(fc.Services)+1)
	for _, sc := range fc.Services {
		spec, err := serviceSpec(sc, fc.Log, cfg.Stop.Grace, env)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		cfg.Backends = append(cfg.Backends, spec)
	}

	front, err := serviceSpec(*fc.Frontend, fc.Log, cfg.Stop.Grace, env)
	if err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	if _, dup := seen[front.Name]; dup {
		return nil, fmt.Errorf("frontend name %q collides with a service", front.Name)
	}
	// The frontend always shuts down before every backend.
	maxTier := 0
	for _, b := range cfg.Backends {
		if b.Tier > maxTier {
			maxTier = b.Tier
		}
	}
	front.Tier = maxTier + 1
	cfg.Frontend = front
	return cfg, nil
}

func serviceSpec(sc ServiceConfig, topLog *LogConfig, defaultGrace time.Duration, globalEnv []string) (process.Spec, error) {
	if strings.TrimSpace(sc.Name) == "" {
		return process.Spec{}, fmt.Errorf("service requires a name")
	}
	if strings.TrimSpace(sc.Command) == "" {
		return process.Spec{}, fmt.Errorf("service %s requires a command", sc.Name)
	}
	if sc.HealthURL != "" {
		u, err := url.Parse(sc.HealthURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return process.Spec{}, fmt.Errorf("service %s has invalid health_url %q", sc.Name, sc.HealthURL)
		}
	}
	grace := sc.StopGrace
	if grace <= 0 {
		grace = defaultGrace
	}

	// Per-service log settings override the top-level defaults field by field.
	var logCfg logger.FileConfig
	if topLog != nil {
		logCfg = fileConfig(topLog)
	}
	if sc.Log != nil {
		over := fileConfig(sc.Log)
		if over.Dir != "" {
			logCfg.Dir = over.Dir
		}
		if over.StdoutPath != "" {
			logCfg.StdoutPath = over.StdoutPath
		}
		if over.StderrPath != "" {
			logCfg.StderrPath = over.StderrPath
		}
		if over.MaxSizeMB != 0 {
			logCfg.MaxSizeMB = over.MaxSizeMB
		}
		if over.MaxBackups != 0 {
			logCfg.MaxBackups = over.MaxBackups
		}
		if over.MaxAgeDays != 0 {
			logCfg.MaxAgeDays = over.MaxAgeDays
		}
		if over.Compress {
			logCfg.Compress = true
		}
	}

	return process.Spec{
		Name:      sc.Name,
		Command:   sc.Command,
		WorkDir:   sc.WorkDir,
		Env:       append(append([]string{}, globalEnv...), sc.Env...),
		HealthURL: sc.HealthURL,
		Tier:      sc.Tier,
		StopGrace: grace,
		Log:       logCfg,
	}, nil
}

func fileConfig(lc *LogConfig) logger.FileConfig {
	return logger.FileConfig{
		Dir:        lc.Dir,
		StdoutPath: lc.Stdout,
		StderrPath: lc.Stderr,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

// mergeEnv builds the shared child environment. Precedence, lowest first:
// OS env when use_os_env is set, then env_files in listed order, then the
// top-level env list.
func mergeEnv(fc *FileConfig) ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, val := range pairs {
			m[k] = val
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, val := range m {
		out = append(out, k+"="+val)
	}
	return out, nil
}
