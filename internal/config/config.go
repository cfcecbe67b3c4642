// Package config handles configuration loading and validation for tagfsd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ProjectDirName is the per-project configuration directory name.
	ProjectDirName = ".tagfsd"
	// ProjectConfigFile is the config filename inside the project dir.
	ProjectConfigFile = "config.yaml"
	// DefaultSocketPath is the fallback IPC socket path when neither a flag
	// nor a config file supplies one.
	DefaultSocketPath = "/tmp/tagfsd.sock"
	// DefaultDebounceMillis is the fallback event-source debounce window.
	DefaultDebounceMillis = 100
	// DefaultVerbosity is the fallback logrus level name.
	DefaultVerbosity = "info"
)

// Config holds the per-run configuration for the daemon.
type Config struct {
	// WatchedRoot is the absolute directory the daemon indexes and watches.
	WatchedRoot string `mapstructure:"watched_root" yaml:"watched_root"`
	// SocketPath is the Unix domain socket the IPC server listens on.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	// ExcludePatterns are gitignore-style globs excluded from watching.
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	// DebounceMillis is the event-source debounce window, in milliseconds.
	DebounceMillis int `mapstructure:"debounce_millis" yaml:"debounce_millis"`
	// Verbosity is a logrus level name (e.g. "info", "debug").
	Verbosity string `mapstructure:"verbosity" yaml:"verbosity"`
	// Debug enables the gops agent and the periodic graph snapshot dump.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// ConfigDir is the resolved .tagfsd directory path (not persisted in YAML).
	ConfigDir string `mapstructure:"-" yaml:"-"`
}

// DiscoverProjectDir walks up from startDir looking for a .tagfsd/ directory.
// Returns the full path to the .tagfsd/ directory if found, or empty string
// if not.
func DiscoverProjectDir(startDir string) string {
	dir := startDir
	for {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return ""
}

// ResolveSocketPath determines the IPC socket path using this priority:
//  1. flagValue (CLI --socket flag) if non-empty
//  2. socket_path from the config YAML if non-empty
//  3. DefaultSocketPath
func (c *Config) ResolveSocketPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return DefaultSocketPath
}

// Load loads configuration from file, environment variables, and defaults.
// Search order:
//  1. --config flag (explicit path via global viper)
//  2. --project-name flag -> registry lookup
//  3. Walk up from CWD for .tagfsd/config.yaml
//  4. Registry lookup by CWD path
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TAGFSD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var configDir string

	globalViper := viper.GetViper()
	if configFile := globalViper.GetString("config_file"); configFile != "" {
		v.SetConfigFile(configFile)
		cfgParent := filepath.Dir(configFile)
		if filepath.Base(cfgParent) == ProjectDirName {
			configDir = cfgParent
		}
	} else {
		if projectName := globalViper.GetString("project_name"); projectName != "" {
			entries := ListProjects()
			for _, entry := range entries {
				if entry.Name == projectName {
					configDir = entry.ConfigDir
					v.Set("watched_root", entry.Root)
					v.Set("socket_path", entry.Socket)
					configFile := filepath.Join(configDir, ProjectConfigFile)
					if _, err := os.Stat(configFile); err == nil {
						v.SetConfigFile(configFile)
					}
					break
				}
			}
		}

		if v.ConfigFileUsed() == "" {
			cwd, err := os.Getwd()
			if err == nil {
				if projDir := DiscoverProjectDir(cwd); projDir != "" {
					configDir = projDir
					configFile := filepath.Join(projDir, ProjectConfigFile)
					if _, err := os.Stat(configFile); err == nil {
						v.SetConfigFile(configFile)
					}
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configDir == "" {
			cwd, err := os.Getwd()
			if err == nil {
				if entry, ok := LookupProject(cwd); ok {
					v.Set("watched_root", entry.Root)
					v.Set("socket_path", entry.Socket)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.ConfigDir = configDir

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.WatchedRoot == "" {
		return fmt.Errorf("watched root is required")
	}
	if !filepath.IsAbs(c.WatchedRoot) {
		return fmt.Errorf("watched root must be an absolute path, got %q", c.WatchedRoot)
	}
	info, err := os.Stat(c.WatchedRoot)
	if err != nil {
		return fmt.Errorf("watched root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watched root %q is not a directory", c.WatchedRoot)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("socket_path", DefaultSocketPath)
	v.SetDefault("debounce_millis", DefaultDebounceMillis)
	v.SetDefault("verbosity", DefaultVerbosity)
	v.SetDefault("exclude_patterns", []string{
		"**/.git/**",
	})
}
