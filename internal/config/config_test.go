package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/errclass/internal/config"
)

var envKeys = []string{
	"CORPUS_PATH",
	"CORPUS_MAX_DATA",
	"FEATURES_MAX_LEN",
	"FEATURES_PAD",
	"TRAINING_HIDDEN",
	"TRAINING_LEARNING_RATE",
	"TRAINING_EPOCHS",
	"TRAINING_BATCH_SIZE",
	"TRAINING_VALIDATION_SPLIT",
	"SEARCH_M",
	"SEARCH_EF_SEARCH",
	"SEARCH_K",
	"LOG_FORMAT",
	"STORAGE_BACKEND",
	"STORAGE_DIR",
	"SERVER_ADDR",
	"SERVER_READ_TIMEOUT",
	"SEARCH_ENABLED",
	"LOG_LEVEL",
	"TEST_STRING",
	"TEST_INT",
	"TEST_FLOAT",
	"TEST_BOOL",
	"TEST_DURATION",
	"TEST_LIST",
}

// clearEnvVars unsets every variable the tests touch
func clearEnvVars() {
	for _, key := range envKeys {
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	clearEnvVars()

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "./data/training_success.json", cfg.Corpus.Path)
	assert.Equal(t, 0, cfg.Corpus.MaxData)
	assert.Equal(t, 50, cfg.Features.MaxLen)
	assert.False(t, cfg.Features.Pad)

	assert.Equal(t, []int{64, 128, 64, 32, 16}, cfg.Training.Hidden)
	assert.Equal(t, 0.001, cfg.Training.LearningRate)
	assert.Equal(t, 8, cfg.Training.BatchSize)
	assert.Equal(t, 50, cfg.Training.Epochs)
	assert.Equal(t, 0.2, cfg.Training.ValidationSplit)
	assert.Equal(t, 5, cfg.Training.Patience)

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Search.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFromEnv(t *testing.T) {
	envVars := map[string]string{
		"CORPUS_PATH":            "/tmp/reports.ndjson",
		"CORPUS_MAX_DATA":        "500",
		"FEATURES_MAX_LEN":       "20",
		"FEATURES_PAD":           "true",
		"TRAINING_HIDDEN":        "32, 16",
		"TRAINING_LEARNING_RATE": "0.01",
		"STORAGE_BACKEND":        "badger",
		"SERVER_READ_TIMEOUT":    "2s",
		"SEARCH_ENABLED":         "false",
	}
	for key, value := range envVars {
		os.Setenv(key, value)
	}
	defer clearEnvVars()

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/reports.ndjson", cfg.Corpus.Path)
	assert.Equal(t, 500, cfg.Corpus.MaxData)
	assert.Equal(t, 20, cfg.Features.MaxLen)
	assert.True(t, cfg.Features.Pad)
	assert.Equal(t, []int{32, 16}, cfg.Training.Hidden)
	assert.Equal(t, 0.01, cfg.Training.LearningRate)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	assert.False(t, cfg.Search.Enabled)
}

func TestLoadFile(t *testing.T) {
	clearEnvVars()

	path := filepath.Join(t.TempDir(), "errclass.toml")
	content := `
[corpus]
path = "reports.ndjson"
max_data = 100

[features]
max_len = 10
pad = true

[training]
hidden = [8, 4]
epochs = 3

[server]
read_timeout = "3s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "reports.ndjson", cfg.Corpus.Path)
	assert.Equal(t, 100, cfg.Corpus.MaxData)
	assert.Equal(t, 10, cfg.Features.MaxLen)
	assert.True(t, cfg.Features.Pad)
	assert.Equal(t, []int{8, 4}, cfg.Training.Hidden)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)

	// untouched sections keep their defaults
	assert.Equal(t, 8, cfg.Training.BatchSize)
	assert.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	path := filepath.Join(t.TempDir(), "errclass.toml")
	require.NoError(t, os.WriteFile(path, []byte("[features]\nmax_len = 10\n"), 0644))
	os.Setenv("FEATURES_MAX_LEN", "7")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Features.MaxLen)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"Negative max len", "FEATURES_MAX_LEN", "-1", "MaxLen"},
		{"Zero max len", "FEATURES_MAX_LEN", "0", "MaxLen"},
		{"Negative validation split", "TRAINING_VALIDATION_SPLIT", "-0.5", "ValidationSplit"},
		{"Validation split of one", "TRAINING_VALIDATION_SPLIT", "1", "ValidationSplit"},
		{"Zero batch size", "TRAINING_BATCH_SIZE", "0", "BatchSize"},
		{"Zero epochs", "TRAINING_EPOCHS", "0", "Epochs"},
		{"Zero learning rate", "TRAINING_LEARNING_RATE", "0", "LearningRate"},
		{"Zero hidden width", "TRAINING_HIDDEN", "64,0", "Hidden[1]"},
		{"Search m below two", "SEARCH_M", "1", "M"},
		{"Zero ef search", "SEARCH_EF_SEARCH", "0", "EfSearch"},
		{"Zero k", "SEARCH_K", "0", "K"},
		{"Unknown backend", "STORAGE_BACKEND", "postgres", "Backend"},
		{"Unknown log format", "LOG_FORMAT", "xml", "Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			defer clearEnvVars()
			os.Setenv(tt.key, tt.value)

			cfg, err := config.Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_FileValues(t *testing.T) {
	clearEnvVars()

	path := filepath.Join(t.TempDir(), "errclass.toml")
	require.NoError(t, os.WriteFile(path, []byte("[features]\nmax_len = -1\n"), 0644))

	_, err := config.LoadFile(path)
	assert.ErrorContains(t, err, "MaxLen")

	assert.NoError(t, config.Defaults().Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[features\nmax_len = "), 0644))
	_, err = config.LoadFile(path)
	assert.Error(t, err)
}

func TestGetStringEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		envValue     string
		defaultValue string
		expected     string
	}{
		{"Existing env var", "TEST_STRING", "test_value", "default", "test_value"},
		{"Non-existing env var", "NON_EXISTENT", "", "default", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv(tt.key)
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			assert.Equal(t, tt.expected, config.GetStringEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		expected     int
	}{
		{"Valid int", "42", 10, 42},
		{"Invalid int", "not_a_number", 10, 10},
		{"Negative int", "-5", 10, -5},
		{"Zero", "0", 10, 0},
		{"Unset", "", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_INT")
			if tt.envValue != "" {
				os.Setenv("TEST_INT", tt.envValue)
				defer os.Unsetenv("TEST_INT")
			}

			assert.Equal(t, tt.expected, config.GetIntEnv("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetFloatEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		expected     float64
	}{
		{"Valid float", "0.25", 1, 0.25},
		{"Scientific", "1e-3", 1, 0.001},
		{"Invalid float", "abc", 1, 1},
		{"Unset", "", 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_FLOAT")
			if tt.envValue != "" {
				os.Setenv("TEST_FLOAT", tt.envValue)
				defer os.Unsetenv("TEST_FLOAT")
			}

			assert.Equal(t, tt.expected, config.GetFloatEnv("TEST_FLOAT", tt.defaultValue))
		})
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		expected     bool
	}{
		{"True string", "true", false, true},
		{"False string", "false", true, false},
		{"1 (true)", "1", false, true},
		{"Invalid bool", "invalid", true, true},
		{"Unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_BOOL")
			if tt.envValue != "" {
				os.Setenv("TEST_BOOL", tt.envValue)
				defer os.Unsetenv("TEST_BOOL")
			}

			assert.Equal(t, tt.expected, config.GetBoolEnv("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		expected     time.Duration
	}{
		{"Seconds", "5s", time.Second, 5 * time.Second},
		{"Combined", "1h30m", time.Second, 90 * time.Minute},
		{"Invalid duration", "invalid", 5 * time.Second, 5 * time.Second},
		{"Unset", "", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_DURATION")
			if tt.envValue != "" {
				os.Setenv("TEST_DURATION", tt.envValue)
				defer os.Unsetenv("TEST_DURATION")
			}

			assert.Equal(t, tt.expected, config.GetDurationEnv("TEST_DURATION", tt.defaultValue))
		})
	}
}

func TestGetIntListEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected []int
	}{
		{"Single", "16", []int{16}},
		{"List with spaces", "64, 32 ,16", []int{64, 32, 16}},
		{"Malformed element", "64,x", []int{1, 2}},
		{"Unset", "", []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("TEST_LIST")
			if tt.envValue != "" {
				os.Setenv("TEST_LIST", tt.envValue)
				defer os.Unsetenv("TEST_LIST")
			}

			assert.Equal(t, tt.expected, config.GetIntListEnv("TEST_LIST", []int{1, 2}))
		})
	}
}
