// Package config holds the runtime options of smiview.
//
// A Config is a plain value. Nothing in the program reads configuration from
// a global; components get the values they need at construction time and
// receive later changes through an explicit reconfigure call.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DeviceInfoField names a device attribute shown below a device in the tree.
type DeviceInfoField string

const (
	DeviceUtilization DeviceInfoField = "utilization"
	DeviceMemory      DeviceInfoField = "memory"
	DeviceFanSpeed    DeviceInfoField = "fanSpeed"
	DeviceTemperature DeviceInfoField = "temperature"
	DevicePowerUsage  DeviceInfoField = "powerUsage"
	DeviceProcesses   DeviceInfoField = "processes"
)

// ProcessInfoField names a process attribute shown below a process in the tree.
type ProcessInfoField string

const (
	ProcessPID           ProcessInfoField = "pid"
	ProcessUsedGPUMemory ProcessInfoField = "usedGpuMemory"
	ProcessUsername      ProcessInfoField = "username"
	ProcessRuntime       ProcessInfoField = "runtime"
)

var (
	allDeviceInfoFields  = []DeviceInfoField{DeviceUtilization, DeviceMemory, DeviceFanSpeed, DeviceTemperature, DevicePowerUsage, DeviceProcesses}
	allProcessInfoFields = []ProcessInfoField{ProcessPID, ProcessUsedGPUMemory, ProcessUsername, ProcessRuntime}
)

// Remote selects running cluster-smi on another host over SSH.
type Remote struct {
	Host           string `yaml:"host,omitempty"`
	User           string `yaml:"user,omitempty"`
	ProxyJump      string `yaml:"proxy_jump,omitempty"`
	ConnectTimeout int    `yaml:"connect_timeout,omitempty"` // seconds
}

// Enabled reports whether a remote host is configured.
func (r Remote) Enabled() bool { return r.Host != "" }

// Restart controls restarting cluster-smi after it exits.
type Restart struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

// Config carries runtime options for smiview.
type Config struct {
	Command           string             `yaml:"command"`
	Args              []string           `yaml:"args"`
	Remote            Remote             `yaml:"remote"`
	NodeFilter        string             `yaml:"node_filter"`
	DeviceInfoFields  []DeviceInfoField  `yaml:"device_info_fields"`
	ProcessInfoFields []ProcessInfoField `yaml:"process_info_fields"`
	Restart           Restart            `yaml:"restart"`
	StatsInterval     time.Duration      `yaml:"stats_interval"`
	HistoryPath       string             `yaml:"history_path"`
	LogFile           string             `yaml:"log_file"`
	LogLevel          string             `yaml:"log_level"`
	TimeZone          string             `yaml:"time_zone"`
	LineBuffered      bool               `yaml:"line_buffered"`

	// Output modes are per invocation and never read from the file.
	JSON       bool `yaml:"-"`
	JSONStream bool `yaml:"-"`
}

const (
	// Dir is the directory name under XDG_CONFIG_HOME.
	Dir = "smiview"
	// File is the config file name.
	File = "config.yml"

	envPrefix = "SMIVIEW_"
)

func Default() Config {
	return Config{
		Command:           "cluster-smi",
		Args:              []string{"-p", "-d"},
		Remote:            Remote{ConnectTimeout: 10},
		DeviceInfoFields:  slices.Clone(allDeviceInfoFields),
		ProcessInfoFields: slices.Clone(allProcessInfoFields),
		Restart:           Restart{Enabled: true, Interval: 5 * time.Second, Burst: 3},
		StatsInterval:     2 * time.Second,
		LogLevel:          "info",
		TimeZone:          "Local",
	}
}

// Path returns the default config file location.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/smiview/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, Dir, File)
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// LoadDotEnv loads a .env file from the working directory if there is one.
// Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// ApplyEnv applies SMIVIEW_* environment overrides.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "COMMAND"); v != "" {
		cfg.Command = v
	}
	if v := os.Getenv(envPrefix + "REMOTE_HOST"); v != "" {
		cfg.Remote.Host = v
	}
	if v := os.Getenv(envPrefix + "REMOTE_USER"); v != "" {
		cfg.Remote.User = v
	}
	if v := os.Getenv(envPrefix + "NODE_FILTER"); v != "" {
		cfg.NodeFilter = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv(envPrefix + "HISTORY"); v != "" {
		cfg.HistoryPath = v
	}
	if v := os.Getenv(envPrefix + "RESTART"); v == "0" {
		cfg.Restart.Enabled = false
	}
	if v := os.Getenv(envPrefix + "STATS_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.StatsInterval = parsed
		} else if secs, err2 := strconv.Atoi(v); err2 == nil {
			cfg.StatsInterval = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("command must not be empty")
	}
	if _, err := c.NodeFilterRegexp(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, f := range c.DeviceInfoFields {
		if !slices.Contains(allDeviceInfoFields, f) {
			return fmt.Errorf("unknown device info field %q", f)
		}
	}
	for _, f := range c.ProcessInfoFields {
		if !slices.Contains(allProcessInfoFields, f) {
			return fmt.Errorf("unknown process info field %q", f)
		}
	}
	if c.Restart.Enabled && c.Restart.Interval <= 0 {
		return errors.New("restart interval must be positive")
	}
	return nil
}

// NodeFilterRegexp compiles NodeFilter. An empty filter yields nil.
func (c Config) NodeFilterRegexp() (*regexp.Regexp, error) {
	if c.NodeFilter == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.NodeFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid node filter %q: %w", c.NodeFilter, err)
	}
	return re, nil
}

// Location resolves TimeZone, the zone cluster-smi prints its banner in.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}
