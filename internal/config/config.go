package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// Config holds the configuration for the classifier service and CLI
type Config struct {
	Corpus   CorpusConfig   `toml:"corpus"`
	Features FeaturesConfig `toml:"features"`
	Training TrainingConfig `toml:"training"`
	Storage  StorageConfig  `toml:"storage"`
	Server   ServerConfig   `toml:"server"`
	Search   SearchConfig   `toml:"search"`
	Log      LogConfig      `toml:"log"`
}

// CorpusConfig describes where labelled reports are read from
type CorpusConfig struct {
	Path string `toml:"path"`
	// MaxData caps the number of categorised records read. Zero reads all.
	MaxData      int `toml:"max_data"`
	MaxLineBytes int `toml:"max_line_bytes"`
}

// FeaturesConfig controls feature row assembly
type FeaturesConfig struct {
	MaxLen int  `toml:"max_len" validate:"min=1"`
	Pad    bool `toml:"pad"`
}

// TrainingConfig holds network hyperparameters
type TrainingConfig struct {
	Hidden          []int   `toml:"hidden" validate:"dive,min=1"`
	LearningRate    float64 `toml:"learning_rate" validate:"gt=0"`
	BatchSize       int     `toml:"batch_size" validate:"min=1"`
	Epochs          int     `toml:"epochs" validate:"min=1"`
	ValidationSplit float64 `toml:"validation_split" validate:"gte=0,lt=1"`
	Patience        int     `toml:"patience" validate:"min=0"`
	Seed            int     `toml:"seed"`
}

// StorageConfig selects the model store
type StorageConfig struct {
	Backend string `toml:"backend" validate:"oneof=file badger"`
	Dir     string `toml:"dir" validate:"required"`
}

type ServerConfig struct {
	Addr         string        `toml:"addr"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	CacheSize    int           `toml:"cache_size" validate:"min=0"`
}

// SearchConfig tunes the similar-report index
type SearchConfig struct {
	Enabled  bool `toml:"enabled"`
	M        int  `toml:"m" validate:"min=2"`
	EfSearch int  `toml:"ef_search" validate:"min=1"`
	K        int  `toml:"k" validate:"min=1"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Path:         "./data/training_success.json",
			MaxData:      0,
			MaxLineBytes: 16 << 20,
		},
		Features: FeaturesConfig{
			MaxLen: 50,
			Pad:    false,
		},
		Training: TrainingConfig{
			Hidden:          []int{64, 128, 64, 32, 16},
			LearningRate:    0.001,
			BatchSize:       8,
			Epochs:          50,
			ValidationSplit: 0.2,
			Patience:        5,
			Seed:            42,
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "./data/model",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			CacheSize:    1024,
		},
		Search: SearchConfig{
			Enabled:  true,
			M:        16,
			EfSearch: 20,
			K:        5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is read first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := applyEnv(Defaults())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file over the defaults; environment variables
// still take precedence over values from the file.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the trainer, index or server cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		problems := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) *Config {
	cfg.Corpus = CorpusConfig{
		Path:         GetStringEnv("CORPUS_PATH", cfg.Corpus.Path),
		MaxData:      GetIntEnv("CORPUS_MAX_DATA", cfg.Corpus.MaxData),
		MaxLineBytes: GetIntEnv("CORPUS_MAX_LINE_BYTES", cfg.Corpus.MaxLineBytes),
	}
	cfg.Features = FeaturesConfig{
		MaxLen: GetIntEnv("FEATURES_MAX_LEN", cfg.Features.MaxLen),
		Pad:    GetBoolEnv("FEATURES_PAD", cfg.Features.Pad),
	}
	cfg.Training = TrainingConfig{
		Hidden:          GetIntListEnv("TRAINING_HIDDEN", cfg.Training.Hidden),
		LearningRate:    GetFloatEnv("TRAINING_LEARNING_RATE", cfg.Training.LearningRate),
		BatchSize:       GetIntEnv("TRAINING_BATCH_SIZE", cfg.Training.BatchSize),
		Epochs:          GetIntEnv("TRAINING_EPOCHS", cfg.Training.Epochs),
		ValidationSplit: GetFloatEnv("TRAINING_VALIDATION_SPLIT", cfg.Training.ValidationSplit),
		Patience:        GetIntEnv("TRAINING_PATIENCE", cfg.Training.Patience),
		Seed:            GetIntEnv("TRAINING_SEED", cfg.Training.Seed),
	}
	cfg.Storage = StorageConfig{
		Backend: GetStringEnv("STORAGE_BACKEND", cfg.Storage.Backend),
		Dir:     GetStringEnv("STORAGE_DIR", cfg.Storage.Dir),
	}
	cfg.Server = ServerConfig{
		Addr:         GetStringEnv("SERVER_ADDR", cfg.Server.Addr),
		ReadTimeout:  GetDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout),
		WriteTimeout: GetDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout),
		CacheSize:    GetIntEnv("SERVER_CACHE_SIZE", cfg.Server.CacheSize),
	}
	cfg.Search = SearchConfig{
		Enabled:  GetBoolEnv("SEARCH_ENABLED", cfg.Search.Enabled),
		M:        GetIntEnv("SEARCH_M", cfg.Search.M),
		EfSearch: GetIntEnv("SEARCH_EF_SEARCH", cfg.Search.EfSearch),
		K:        GetIntEnv("SEARCH_K", cfg.Search.K),
	}
	cfg.Log = LogConfig{
		Level:  GetStringEnv("LOG_LEVEL", cfg.Log.Level),
		Format: GetStringEnv("LOG_FORMAT", cfg.Log.Format),
	}
	return cfg
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetIntListEnv parses a comma separated list such as "64,128,64". Any
// malformed element makes the whole value fall back to the default.
func GetIntListEnv(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	list := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		list = append(list, n)
	}
	return list
}
