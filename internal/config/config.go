// Package config provides configuration management for tagnest using Viper
// for configuration loading from files, environment variables, and
// command-line flags.
//
// Values come from, highest precedence first: flags bound by the CLI, the
// file named by TAGNEST_CONFIG_FILE (or --config), TAGNEST_* environment
// variables and .tagnest.yml in the working directory.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultMaxFileSize is the largest document read without an explicit
// check.max_file_size.
const DefaultMaxFileSize int64 = 10 << 20

// Output formats accepted by output.format.
var validFormats = []string{"text", "json", "yaml", "table"}

type Config struct {
	Check  CheckConfig  `yaml:"check"`
	Output OutputConfig `yaml:"output"`
	Watch  WatchConfig  `yaml:"watch"`
	Log    LogConfig    `yaml:"log"`
}

type CheckConfig struct {
	Paths         []string `yaml:"paths"`
	Extensions    []string `yaml:"extensions"`
	Exclude       []string `yaml:"exclude"`
	Workers       int      `yaml:"workers"`
	Diagnostics   bool     `yaml:"diagnostics"`
	DetectCharset bool     `yaml:"detect_charset" mapstructure:"detect_charset"`
	MaxFileSize   int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
}

type OutputConfig struct {
	Format string `yaml:"format"`
}

type WatchConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	Serve          string        `yaml:"serve"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultWorkers is the worker count used when check.workers is unset.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SetDefaults registers default values on the global viper instance.
func SetDefaults() {
	viper.SetDefault("check.paths", []string{"."})
	viper.SetDefault("check.extensions", []string{".html", ".htm", ".xhtml"})
	viper.SetDefault("check.exclude", []string{"node_modules", ".git"})
	viper.SetDefault("check.workers", DefaultWorkers())
	viper.SetDefault("check.diagnostics", true)
	viper.SetDefault("check.detect_charset", true)
	viper.SetDefault("check.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("output.format", "text")
	viper.SetDefault("watch.debounce", 300*time.Millisecond)
	viper.SetDefault("watch.serve", "")
	viper.SetDefault("watch.allowed_origins", []string{})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Workaround for viper slice handling when values come from flags.
	if len(config.Check.Paths) == 0 && viper.IsSet("check.paths") {
		config.Check.Paths = viper.GetStringSlice("check.paths")
	}
	if len(config.Check.Exclude) == 0 && viper.IsSet("check.exclude") {
		config.Check.Exclude = viper.GetStringSlice("check.exclude")
	}

	if len(config.Check.Paths) == 0 {
		config.Check.Paths = []string{"."}
	}
	if config.Check.Workers == 0 {
		config.Check.Workers = DefaultWorkers()
	}
	if config.Check.MaxFileSize == 0 {
		config.Check.MaxFileSize = DefaultMaxFileSize
	}
	if config.Output.Format == "" {
		config.Output.Format = "text"
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = 300 * time.Millisecond
	}
	config.Check.Extensions = normalizeExtensions(config.Check.Extensions)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// normalizeExtensions lower-cases extensions and adds a missing leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateCheckConfig(&config.Check); err != nil {
		return fmt.Errorf("check config: %w", err)
	}

	if err := ValidateFormat(config.Output.Format); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if config.Log.Format != "" && config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log config: unknown format %q (text, json)", config.Log.Format)
	}

	return nil
}

func validateCheckConfig(config *CheckConfig) error {
	for _, path := range config.Paths {
		if err := ValidatePath(path); err != nil {
			return fmt.Errorf("invalid path '%s': %w", path, err)
		}
	}

	if len(config.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}

	for _, pattern := range config.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
	}

	if config.Workers < 1 || config.Workers > 256 {
		return fmt.Errorf("workers %d is not in valid range 1-256", config.Workers)
	}

	if config.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size must not be negative")
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}

	if config.Serve != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
		for _, char := range dangerousChars {
			if strings.Contains(config.Serve, char) {
				return fmt.Errorf("serve address contains dangerous character: %q", char)
			}
		}
		if !strings.Contains(config.Serve, ":") {
			return fmt.Errorf("serve address %q must be host:port", config.Serve)
		}
	}

	return nil
}

// ValidateFormat checks an output format name.
func ValidateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (%s)", format, strings.Join(validFormats, ", "))
}

// ValidatePath validates a document path. "-" names standard input.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if path == "-" {
		return nil
	}

	cleanPath := filepath.Clean(path)

	// Shell metacharacters never appear in a document path we accept.
	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\""}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	if strings.ContainsRune(cleanPath, 0) {
		return fmt.Errorf("path contains NUL byte")
	}

	return nil
}
