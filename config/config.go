package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultReadinessMarker is the diagnostic line the builder prints once the
// image is mounted and writable.
const DefaultReadinessMarker = "fuse_init: activating writeback"

// Default timeouts. Marker and Drain are per-line inactivity deadlines.
const (
	DefaultMarkerTimeout      = 5 * time.Minute
	DefaultDrainTimeout       = 5 * time.Minute
	DefaultPopulatorGrace     = 5 * time.Minute
	DefaultBuilderReapTimeout = 60 * time.Second
	DefaultKillGrace          = 10 * time.Second
)

// DefaultRetry is the number of attempts a build gets before giving up.
const DefaultRetry = 10

// Config holds mkimg configuration
type Config struct {
	Profile     string
	ScriptsPath string
	LogsPath    string

	BuilderCommand   string
	PopulatorCommand string
	UnmountCommand   string
	PrepareCommand   string
	PrepareDir       string

	ReadinessMarker string
	ProcessBackend  string
	EnvironmentFile string
	MetricsTextfile string

	Retry          int
	UnmountRetries int

	Timeouts struct {
		Marker         time.Duration // 0 disables the deadline
		Drain          time.Duration
		PopulatorGrace time.Duration
		BuilderReap    time.Duration
		KillGrace      time.Duration
		Unmount        time.Duration // 0 waits for the unmount script indefinitely
	}

	Debug bool

	// Database settings
	Database struct {
		Path string // Default: ${LogsPath}/mkimg.db
	}
}

var globalConfig *Config

// GetConfig returns the global configuration
func GetConfig() *Config {
	return globalConfig
}

// SetConfig sets the global configuration
func SetConfig(cfg *Config) {
	globalConfig = cfg
}

// LoadConfig loads configuration from file.
//
// The file is <configDir>/mkimg.ini, or /etc/mkimg/mkimg.ini when configDir
// is empty. A missing file is not an error; defaults are applied either way.
func LoadConfig(configDir, profile string) (*Config, error) {
	cfg := &Config{
		Profile: profile,
	}
	cfg.Timeouts.Marker = -1
	cfg.Timeouts.Unmount = -1

	configFile := "/etc/mkimg/mkimg.ini"
	if configDir != "" {
		configFile = filepath.Join(configDir, "mkimg.ini")
	}

	if _, err := os.Stat(configFile); err == nil {
		iniFile, err := ini.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}

		// If no profile specified, read from global section
		if cfg.Profile == "" || cfg.Profile == "default" {
			if globalSec, err := iniFile.GetSection("Global Configuration"); err == nil {
				if key := globalSec.Key("profile_selected"); key.String() != "" {
					cfg.Profile = key.String()
				}
			}
		}

		// Profile values win over the global section
		seen := make(map[string]bool)
		if cfg.Profile != "" && cfg.Profile != "default" {
			if profileSec, err := iniFile.GetSection(cfg.Profile); err == nil {
				cfg.loadFromSection(profileSec, seen)
			}
		}

		if globalSec, err := iniFile.GetSection("Global Configuration"); err == nil {
			cfg.loadFromSection(globalSec, seen)
		}
	} else if configDir != "" {
		fmt.Fprintf(os.Stderr, "Warning: No config file found at %s, using defaults\n", configFile)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with every default applied and no file
// loaded.
func Default() *Config {
	cfg := &Config{}
	cfg.Timeouts.Marker = -1
	cfg.Timeouts.Unmount = -1
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.ScriptsPath == "" {
		cfg.ScriptsPath = defaultScriptsPath()
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = filepath.Join(os.TempDir(), "mkimg", "logs")
	}
	if cfg.BuilderCommand == "" {
		cfg.BuilderCommand = "make_disk_image.sh"
	}
	if cfg.PopulatorCommand == "" {
		cfg.PopulatorCommand = "./cp.sh ."
	}
	if cfg.UnmountCommand == "" {
		cfg.UnmountCommand = "./unmount.sh"
	}
	if cfg.PrepareDir == "" {
		cfg.PrepareDir = filepath.Dir(cfg.ScriptsPath)
	}
	if cfg.ReadinessMarker == "" {
		cfg.ReadinessMarker = DefaultReadinessMarker
	}
	if cfg.ProcessBackend == "" {
		cfg.ProcessBackend = "exec"
	}
	if cfg.Retry <= 0 {
		cfg.Retry = DefaultRetry
	}
	if cfg.UnmountRetries <= 0 {
		cfg.UnmountRetries = 1
	}

	// Negative means "not configured"; zero is a meaningful setting for these two.
	if cfg.Timeouts.Marker < 0 {
		cfg.Timeouts.Marker = DefaultMarkerTimeout
	}
	if cfg.Timeouts.Unmount < 0 {
		cfg.Timeouts.Unmount = 0
	}
	if cfg.Timeouts.Drain <= 0 {
		cfg.Timeouts.Drain = DefaultDrainTimeout
	}
	if cfg.Timeouts.PopulatorGrace <= 0 {
		cfg.Timeouts.PopulatorGrace = DefaultPopulatorGrace
	}
	if cfg.Timeouts.BuilderReap <= 0 {
		cfg.Timeouts.BuilderReap = DefaultBuilderReapTimeout
	}
	if cfg.Timeouts.KillGrace <= 0 {
		cfg.Timeouts.KillGrace = DefaultKillGrace
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.LogsPath, "mkimg.db")
	}
}

// loadFromSection loads config values from an INI section. Keys already
// recorded in seen (by a profile section loaded earlier) are skipped.
func (cfg *Config) loadFromSection(sec *ini.Section, seen map[string]bool) {
	if sec == nil {
		return
	}

	take := func(name string) (*ini.Key, bool) {
		if seen[name] || !sec.HasKey(name) {
			return nil, false
		}
		seen[name] = true
		return sec.Key(name), true
	}
	setString := func(dst *string, name string) {
		if key, ok := take(name); ok {
			*dst = strings.TrimSpace(key.String())
		}
	}
	setInt := func(dst *int, name string) {
		if key, ok := take(name); ok {
			if n, err := key.Int(); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setDuration := func(dst *time.Duration, name string) {
		if key, ok := take(name); ok {
			if d, err := key.Duration(); err == nil && d >= 0 {
				*dst = d
			}
		}
	}

	// Directory paths
	setString(&cfg.ScriptsPath, "Directory_scripts")
	setString(&cfg.LogsPath, "Directory_logs")

	// External commands
	setString(&cfg.BuilderCommand, "Builder_command")
	setString(&cfg.PopulatorCommand, "Populator_command")
	setString(&cfg.UnmountCommand, "Unmount_command")
	setString(&cfg.PrepareCommand, "Prepare_command")
	setString(&cfg.PrepareDir, "Prepare_directory")

	setString(&cfg.ReadinessMarker, "Readiness_marker")
	setString(&cfg.ProcessBackend, "Process_backend")
	setString(&cfg.EnvironmentFile, "Environment_file")
	setString(&cfg.MetricsTextfile, "Metrics_textfile")

	setInt(&cfg.Retry, "Retry")
	setInt(&cfg.UnmountRetries, "Unmount_retries")

	// Timeouts
	setDuration(&cfg.Timeouts.Marker, "Marker_timeout")
	setDuration(&cfg.Timeouts.Drain, "Drain_timeout")
	setDuration(&cfg.Timeouts.PopulatorGrace, "Populator_grace")
	setDuration(&cfg.Timeouts.BuilderReap, "Builder_reap_timeout")
	setDuration(&cfg.Timeouts.KillGrace, "Kill_grace")
	setDuration(&cfg.Timeouts.Unmount, "Unmount_timeout")

	if key, ok := take("Debug"); ok {
		cfg.Debug = parseBool(key.String())
	}

	setString(&cfg.Database.Path, "Database_path")
}

// ResolveCommand splits a configured command line into an executable path
// and arguments. A relative executable containing a path separator, or a bare
// script name that exists in ScriptsPath, is resolved against ScriptsPath.
func (cfg *Config) ResolveCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}

	path := fields[0]
	if !filepath.IsAbs(path) {
		candidate := filepath.Join(cfg.ScriptsPath, path)
		if strings.ContainsRune(path, filepath.Separator) {
			path = candidate
		} else if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	return path, fields[1:]
}

func defaultScriptsPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "scripts"
	}
	return filepath.Join(filepath.Dir(exe), "scripts")
}

func parseBool(s string) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true
	}
	return false
}
