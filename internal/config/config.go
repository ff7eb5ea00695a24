package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the activator daemon.
type Config struct {
	HTTPAddr       string         `yaml:"http_addr"`
	MetricsAddr    string         `yaml:"metrics_addr"`
	HealthAddr     string         `yaml:"health_addr"`
	Pool           Pool           `yaml:"pool"`
	Sweep          Sweep          `yaml:"sweep"`
	Remediation    Remediation    `yaml:"remediation"`
	Delays         Delays         `yaml:"delays"`
	Classification Classification `yaml:"classification"`
	Topology       Topology       `yaml:"topology"`
	Executor       Executor       `yaml:"executor"`
	Credentials    []Credential   `yaml:"credentials"`
	Logging        Logging        `yaml:"logging"`
}

// Pool sizes the shared worker pool.
type Pool struct {
	Width         int      `yaml:"width"`
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

// Sweep configures the recurring health sweep.
type Sweep struct {
	Interval Duration `yaml:"interval"`
}

// Remediation configures the weekly remediation trigger.
type Remediation struct {
	Weekday      string   `yaml:"weekday"`
	Time         string   `yaml:"time"`
	Timezone     string   `yaml:"timezone"`
	RunOnStartup bool     `yaml:"run_on_startup"`
	TaskTimeout  Duration `yaml:"task_timeout"`
}

// Delays are the fixed settle waits used by sweeps and restarts.
type Delays struct {
	PostSweepSettle Duration `yaml:"post_sweep_settle"`
	RestartVerify   Duration `yaml:"restart_verify"`
	GroupStopGap    Duration `yaml:"group_stop_gap"`
	GroupStartGap   Duration `yaml:"group_start_gap"`
	PostRemediation Duration `yaml:"post_remediation"`
}

// Classification tunes the status heuristics.
type Classification struct {
	ProcessNames    []string `yaml:"process_names"`
	ElevationPrefix string   `yaml:"elevation_prefix"`
}

// Topology lists the inventory files describing the fleet.
type Topology struct {
	Files []string `yaml:"files"`
}

// Executor selects and tunes the remote command transport.
type Executor struct {
	Kind           string   `yaml:"kind"`
	AnsibleBinary  string   `yaml:"ansible_binary"`
	SSHPort        int      `yaml:"ssh_port"`
	KnownHosts     string   `yaml:"known_hosts"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// Credential maps an application to the login used on its servers. The
// password is read from the named environment variable.
type Credential struct {
	Application string `yaml:"application"`
	OS          string `yaml:"os"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Logging configures zap.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

const (
	ExecutorAnsible = "ansible"
	ExecutorSSH     = "ssh"
)

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":2112",
		HealthAddr:  ":8086",
		Pool: Pool{
			Width:         10,
			ShutdownGrace: Duration(60 * time.Second),
		},
		Sweep: Sweep{Interval: Duration(5 * time.Minute)},
		Remediation: Remediation{
			Weekday:     "thursday",
			Time:        "16:30",
			TaskTimeout: Duration(5 * time.Minute),
		},
		Delays: Delays{
			PostSweepSettle: Duration(5 * time.Second),
			RestartVerify:   Duration(10 * time.Second),
			GroupStopGap:    Duration(5 * time.Second),
			GroupStartGap:   Duration(10 * time.Second),
			PostRemediation: Duration(15 * time.Second),
		},
		Classification: Classification{
			ProcessNames:    []string{"elasticsearch", "kafka"},
			ElevationPrefix: "sudo ",
		},
		Topology: Topology{Files: []string{"topology.yaml"}},
		Executor: Executor{
			Kind:           ExecutorAnsible,
			AnsibleBinary:  "ansible",
			SSHPort:        22,
			ConnectTimeout: Duration(30 * time.Second),
		},
		Logging: Logging{Level: "INFO", Format: "CONSOLE"},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// Validate fills zero values from the defaults and rejects invalid settings.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Pool.Width <= 0 {
		return fmt.Errorf("pool.width must be positive, got %d", c.Pool.Width)
	}
	if c.Pool.ShutdownGrace <= 0 {
		c.Pool.ShutdownGrace = def.Pool.ShutdownGrace
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = def.Sweep.Interval
	}
	if c.Remediation.TaskTimeout <= 0 {
		c.Remediation.TaskTimeout = def.Remediation.TaskTimeout
	}
	if _, err := ParseWeekday(c.Remediation.Weekday); err != nil {
		return err
	}
	if _, _, err := ParseClock(c.Remediation.Time); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.Executor.Kind) {
	case ExecutorAnsible, ExecutorSSH:
		c.Executor.Kind = strings.ToLower(c.Executor.Kind)
	default:
		return fmt.Errorf("executor.kind %q is not one of %q, %q", c.Executor.Kind, ExecutorAnsible, ExecutorSSH)
	}
	if c.Executor.SSHPort <= 0 {
		c.Executor.SSHPort = def.Executor.SSHPort
	}
	if len(c.Topology.Files) == 0 {
		return errors.New("topology.files must list at least one inventory file")
	}
	for i, cred := range c.Credentials {
		if cred.Application == "" || cred.Username == "" {
			return fmt.Errorf("credential %d needs application and username", i)
		}
	}
	return nil
}

// Location resolves the remediation timezone, defaulting to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Remediation.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Remediation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("remediation.timezone: %w", err)
	}
	return loc, nil
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("remediation.weekday %q is not a weekday", s)
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("remediation.time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
