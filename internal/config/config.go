// Package config provides semodwatch configuration with support for command-line flags,
// environment variables, and .env files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/logger"
	"github.com/listenupapp/semodwatch/internal/validation"
)

// Defaults.
const (
	DefaultInterval       = 20 * time.Second
	DefaultExtensions     = "te,if,fc"
	DefaultPolicyRoot     = "/usr/share/selinux"
	DefaultStatusCommand  = "sestatus"
	DefaultMakeCommand    = "make"
	DefaultInstallCommand = "semodule"
	DefaultOutputFilter   = "m4:"
	DefaultHookSuffix     = ".restorecon"
	DefaultHookShell      = "bash"
	DefaultGitRemote      = "origin"
	DefaultIgnorePatterns = ".git,*.swp,*~"
)

// Git modes.
const (
	GitAuto     = "auto"
	GitEnabled  = "true"
	GitDisabled = "false"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Watch   WatchConfig
	Build   BuildConfig
	Git     GitConfig
	Metrics MetricsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"SEMODWATCH_ENV" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `env:"SEMODWATCH_LOG_LEVEL" validate:"required"`
	Format string `env:"SEMODWATCH_LOG_FORMAT"`
}

// WatchConfig holds directory watching configuration.
type WatchConfig struct {
	// Root is the watched tree and, when it is a git checkout, the working copy.
	Root           string   `env:"SEMODWATCH_ROOT" validate:"required,dir"`
	Recursive      bool     `env:"SEMODWATCH_RECURSIVE"`
	Backend        string   `env:"SEMODWATCH_WATCH_BACKEND" validate:"oneof=auto inotify fsnotify"`
	IgnorePatterns []string `env:"SEMODWATCH_IGNORE"`
	IgnoreHidden   bool     `env:"SEMODWATCH_IGNORE_HIDDEN"`
}

// BuildConfig holds the trigger loop and module build configuration.
type BuildConfig struct {
	Interval       time.Duration `env:"SEMODWATCH_INTERVAL" validate:"gt=0"`
	Extensions     []string      `env:"SEMODWATCH_EXTENSIONS" validate:"min=1,dive,len=2"`
	PolicyRoot     string        `env:"SEMODWATCH_POLICY_ROOT" validate:"required"`
	StatusCommand  string        `env:"SEMODWATCH_STATUS_COMMAND" validate:"required"`
	MakeCommand    string        `env:"SEMODWATCH_MAKE_COMMAND" validate:"required"`
	InstallCommand string        `env:"SEMODWATCH_INSTALL_COMMAND" validate:"required"`
	OutputFilter   string        `env:"SEMODWATCH_OUTPUT_FILTER"`
	HookSuffix     string        `env:"SEMODWATCH_HOOK_SUFFIX" validate:"required,startswith=."`
	HookShell      string        `env:"SEMODWATCH_HOOK_SHELL" validate:"required"`
}

// GitConfig holds working copy synchronisation configuration.
type GitConfig struct {
	// Enabled is "auto" (sync when Root is inside a git working copy), "true" or "false".
	Enabled    string `env:"SEMODWATCH_GIT" validate:"oneof=auto true false"`
	Remote     string `env:"SEMODWATCH_GIT_REMOTE" validate:"required"`
	Username   string `env:"SEMODWATCH_GIT_USERNAME"`
	Password   string `env:"SEMODWATCH_GIT_PASSWORD"`
	SSHKeyPath string `env:"SEMODWATCH_GIT_SSH_KEY" validate:"omitempty,file"`
}

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	// TextfilePath, when set, receives Prometheus text exposition after every cycle.
	TextfilePath string `env:"SEMODWATCH_METRICS_TEXTFILE"`
}

// Flags carries raw command-line values. Empty strings mean "not set".
type Flags struct {
	EnvFile         string
	Environment     string
	LogLevel        string
	LogFormat       string
	Recursive       string
	Backend         string
	Ignore          string
	IgnoreHidden    string
	Interval        string
	Extensions      string
	PolicyRoot      string
	HookShell       string
	Git             string
	GitRemote       string
	GitSSHKey       string
	MetricsTextfile string
}

// LoadConfig loads configuration for the given root directory with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// A root that does not exist yields a NOT_FOUND error.
func LoadConfig(root string, flags Flags) (*Config, error) {
	if flags.EnvFile != "" {
		// Load .env file if it exists (silently ignore if not found).
		if err := loadEnvFile(flags.EnvFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.CodeValidation, "invalid env file %s", flags.EnvFile)
		}
	}

	rootPath, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(flags.Environment, "SEMODWATCH_ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(flags.LogLevel, "SEMODWATCH_LOG_LEVEL", "info"),
			Format: getConfigValue(flags.LogFormat, "SEMODWATCH_LOG_FORMAT", ""),
		},
		Watch: WatchConfig{
			Root:           rootPath,
			Recursive:      getBoolConfigValue(flags.Recursive, "SEMODWATCH_RECURSIVE", true),
			Backend:        getConfigValue(flags.Backend, "SEMODWATCH_WATCH_BACKEND", "auto"),
			IgnorePatterns: splitList(getConfigValue(flags.Ignore, "SEMODWATCH_IGNORE", DefaultIgnorePatterns)),
			IgnoreHidden:   getBoolConfigValue(flags.IgnoreHidden, "SEMODWATCH_IGNORE_HIDDEN", false),
		},
		Build: BuildConfig{
			Extensions:     normalizeExtensions(splitList(getConfigValue(flags.Extensions, "SEMODWATCH_EXTENSIONS", DefaultExtensions))),
			PolicyRoot:     getConfigValue(flags.PolicyRoot, "SEMODWATCH_POLICY_ROOT", DefaultPolicyRoot),
			StatusCommand:  getConfigValue("", "SEMODWATCH_STATUS_COMMAND", DefaultStatusCommand),
			MakeCommand:    getConfigValue("", "SEMODWATCH_MAKE_COMMAND", DefaultMakeCommand),
			InstallCommand: getConfigValue("", "SEMODWATCH_INSTALL_COMMAND", DefaultInstallCommand),
			OutputFilter:   getConfigValue("", "SEMODWATCH_OUTPUT_FILTER", DefaultOutputFilter),
			HookSuffix:     getConfigValue("", "SEMODWATCH_HOOK_SUFFIX", DefaultHookSuffix),
			HookShell:      getConfigValue(flags.HookShell, "SEMODWATCH_HOOK_SHELL", DefaultHookShell),
		},
		Git: GitConfig{
			Enabled:    strings.ToLower(getConfigValue(flags.Git, "SEMODWATCH_GIT", GitAuto)),
			Remote:     getConfigValue(flags.GitRemote, "SEMODWATCH_GIT_REMOTE", DefaultGitRemote),
			Username:   getConfigValue("", "SEMODWATCH_GIT_USERNAME", ""),
			Password:   getConfigValue("", "SEMODWATCH_GIT_PASSWORD", ""),
			SSHKeyPath: getConfigValue(flags.GitSSHKey, "SEMODWATCH_GIT_SSH_KEY", ""),
		},
		Metrics: MetricsConfig{
			TextfilePath: getConfigValue(flags.MetricsTextfile, "SEMODWATCH_METRICS_TEXTFILE", ""),
		},
	}

	intervalStr := getConfigValue(flags.Interval, "SEMODWATCH_INTERVAL", DefaultInterval.String())
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "invalid interval %q", intervalStr)
	}
	cfg.Build.Interval = interval

	if cfg.Git.SSHKeyPath != "" {
		if cfg.Git.SSHKeyPath, err = expandPath(cfg.Git.SSHKeyPath); err != nil {
			return nil, errors.Wrap(err, errors.CodeValidation, "invalid ssh key path")
		}
	}

	if cfg.Metrics.TextfilePath != "" {
		if cfg.Metrics.TextfilePath, err = expandPath(cfg.Metrics.TextfilePath); err != nil {
			return nil, errors.Wrap(err, errors.CodeValidation, "invalid metrics textfile path")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all config values are present and valid.
func (c *Config) Validate() error {
	if err := validation.New().Validate(c); err != nil {
		return err
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return errors.Validationf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if !logger.ValidFormat(c.Logger.Format) {
		return errors.Validationf("invalid log format: %s (must be json, pretty, or text)", c.Logger.Format)
	}

	return nil
}

// resolveRoot makes root absolute and checks it is an existing directory.
func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", errors.Validation("root directory is required")
	}

	path, err := expandPath(root)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeValidation, "invalid root directory")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.DirectoryNotFoundf("%s not found", path)
		}
		return "", errors.Wrapf(err, errors.CodeNotFound, "cannot access %s", path)
	}
	if !info.IsDir() {
		return "", errors.DirectoryNotFoundf("%s is not a directory", path)
	}

	return path, nil
}

// expandPath expands ~ and makes the path absolute.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeExtensions accepts both "te" and ".te" spellings.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
