package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/semodwatch/internal/errors"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Watch: WatchConfig{
			Root:    t.TempDir(),
			Backend: "auto",
		},
		Build: BuildConfig{
			Interval:       DefaultInterval,
			Extensions:     []string{"te", "if", "fc"},
			PolicyRoot:     DefaultPolicyRoot,
			StatusCommand:  DefaultStatusCommand,
			MakeCommand:    DefaultMakeCommand,
			InstallCommand: DefaultInstallCommand,
			HookSuffix:     DefaultHookSuffix,
			HookShell:      DefaultHookShell,
		},
		Git: GitConfig{Enabled: GitAuto, Remote: DefaultGitRemote},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"INFO", true}, // case insensitive
		{"trace", false},
		{"fatal", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logger.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Build.Interval = 0 }},
		{"no extensions", func(c *Config) { c.Build.Extensions = nil }},
		{"long extension", func(c *Config) { c.Build.Extensions = []string{"te", "pp3"} }},
		{"unknown backend", func(c *Config) { c.Watch.Backend = "kqueue" }},
		{"hook suffix without dot", func(c *Config) { c.Build.HookSuffix = "restorecon" }},
		{"unknown git mode", func(c *Config) { c.Git.Enabled = "maybe" }},
		{"missing ssh key", func(c *Config) { c.Git.SSHKeyPath = "/nonexistent/id_ed25519" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadConfig(root, Flags{})
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Watch.Root)
	assert.True(t, cfg.Watch.Recursive)
	assert.Equal(t, "auto", cfg.Watch.Backend)
	assert.Equal(t, []string{".git", "*.swp", "*~"}, cfg.Watch.IgnorePatterns)
	assert.False(t, cfg.Watch.IgnoreHidden)
	assert.Equal(t, 20*time.Second, cfg.Build.Interval)
	assert.Equal(t, []string{"te", "if", "fc"}, cfg.Build.Extensions)
	assert.Equal(t, "/usr/share/selinux", cfg.Build.PolicyRoot)
	assert.Equal(t, "m4:", cfg.Build.OutputFilter)
	assert.Equal(t, ".restorecon", cfg.Build.HookSuffix)
	assert.Equal(t, "bash", cfg.Build.HookShell)
	assert.Equal(t, GitAuto, cfg.Git.Enabled)
	assert.Equal(t, "origin", cfg.Git.Remote)
	assert.Empty(t, cfg.Metrics.TextfilePath)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SEMODWATCH_INTERVAL", "5s")
	t.Setenv("SEMODWATCH_EXTENSIONS", "te")
	t.Setenv("SEMODWATCH_RECURSIVE", "false")

	cfg, err := LoadConfig(root, Flags{Interval: "250ms", Extensions: ".te,.if"})
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Build.Interval)
	assert.Equal(t, []string{"te", "if"}, cfg.Build.Extensions)
	assert.False(t, cfg.Watch.Recursive)
}

func TestLoadConfig_MissingRoot(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing"), Flags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 1, errors.ExitCode(err))
}

func TestLoadConfig_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "policy.te")
	require.NoError(t, os.WriteFile(file, []byte("module policy 1.0;"), 0o600))

	_, err := LoadConfig(file, Flags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestLoadConfig_EmptyRoot(t *testing.T) {
	_, err := LoadConfig("", Flags{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestLoadConfig_InvalidInterval(t *testing.T) {
	_, err := LoadConfig(t.TempDir(), Flags{Interval: "soon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	root := t.TempDir()
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SEMODWATCH_HOOK_SHELL=sh\nSEMODWATCH_GIT=false\n"), 0o600))
	// Registered so t.Setenv restores them after loadEnvFile sets them.
	t.Setenv("SEMODWATCH_HOOK_SHELL", "")
	t.Setenv("SEMODWATCH_GIT", "")

	cfg, err := LoadConfig(root, Flags{EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, "sh", cfg.Build.HookShell)
	assert.Equal(t, GitDisabled, cfg.Git.Enabled)
}

func TestExpandPath_TildeExpansion(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	path, err := expandPath("~/policy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(homeDir, "policy"), path)
}

func TestExpandPath_AbsolutePath(t *testing.T) {
	path, err := expandPath("/srv/policy/../policy")
	require.NoError(t, err)
	assert.Equal(t, "/srv/policy", path)
}

func TestExpandPath_RelativePath(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	path, err := expandPath("modules")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "modules"), path)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Empty(t, splitList(""))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("SEMODWATCH_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "SEMODWATCH_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "SEMODWATCH_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "SEMODWATCH_TEST_MISSING", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"", true}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, getBoolConfigValue(tt.value, "SEMODWATCH_TEST_BOOL_UNSET", true))
		})
	}
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# comment
SEMODWATCH_TEST_A=alpha
SEMODWATCH_TEST_B="quoted value"
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("SEMODWATCH_TEST_A", "")
	t.Setenv("SEMODWATCH_TEST_B", "")

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "alpha", os.Getenv("SEMODWATCH_TEST_A"))
	assert.Equal(t, "quoted value", os.Getenv("SEMODWATCH_TEST_B"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NOT_A_PAIR\n"), 0o600))

	err := loadEnvFile(envFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	err := loadEnvFile("/nonexistent/.env")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SEMODWATCH_TEST_KEEP=from-file\n"), 0o600))
	t.Setenv("SEMODWATCH_TEST_KEEP", "from-env")

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "from-env", os.Getenv("SEMODWATCH_TEST_KEEP"))
}
