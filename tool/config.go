package tool

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/bill2sheet/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
	configMu      sync.RWMutex
)

func init() {
	CurrentConfig = DefaultConfig()
}

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Server: types.ServerConfig{
			Port:              8000,
			BodyLimitBytes:    50 << 20,
			OcrTimeoutSeconds: 120,
		},
		Upload: types.UploadConfig{
			MaxFileCount:             10,
			MaxFileSizeBytes:         2 << 20,
			EventBufferCapacity:      1000,
			HeartbeatIntervalSeconds: 15,
			SessionTimeoutSeconds:    120,
			ExtractInline:            true,
		},
		Vertex: types.VertexConfig{
			Region:            "us-central1",
			Model:             "gemini-1.5-flash",
			RequestsPerMinute: 30,
		},
		Queue: types.QueueConfig{
			RedisAddr:   "127.0.0.1:6379",
			Concurrency: 4,
		},
		Storage: types.StorageConfig{
			Endpoint: "127.0.0.1:9000",
			Bucket:   "bill2sheet-images",
		},
	}
}

// LoadConfig reads path (default ./config.yaml), writing the defaults first when the file
// does not exist. Environment variables override the file.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		if writeErr := writeConfig(path, cfg); writeErr != nil {
			return cfg, fmt.Errorf("config file not found, and failed to generate default config: %w", writeErr)
		}
		DefaultLogger.Infof("Created new config file at %s", path)
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	case info.IsDir():
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		// keys missing from the file keep their default values
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}

	configMu.Lock()
	CurrentConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// ValidateConfig rejects limits the pipeline cannot work with.
func ValidateConfig(cfg types.AppConfig) error {
	u := cfg.Upload
	switch {
	case u.MaxFileCount <= 0:
		return fmt.Errorf("upload.maxFileCount must be positive, got %d", u.MaxFileCount)
	case u.MaxFileSizeBytes <= 0:
		return fmt.Errorf("upload.maxFileSizeBytes must be positive, got %d", u.MaxFileSizeBytes)
	case cfg.Server.BodyLimitBytes > 0 && cfg.Server.BodyLimitBytes < u.MaxFileSizeBytes:
		return fmt.Errorf("server.bodyLimitBytes (%d) is smaller than upload.maxFileSizeBytes (%d)",
			cfg.Server.BodyLimitBytes, u.MaxFileSizeBytes)
	}
	return nil
}

func applyEnv(cfg *types.AppConfig) {
	cfg.Database.DSN = GetEnv("BILL2SHEET_DATABASE_DSN", cfg.Database.DSN)
	cfg.Vertex.ProjectId = GetEnv("GOOGLE_CLOUD_PROJECT", cfg.Vertex.ProjectId)
	cfg.Queue.RedisAddr = GetEnv("BILL2SHEET_REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Storage.AccessKey = GetEnv("BILL2SHEET_S3_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = GetEnv("BILL2SHEET_S3_SECRET_KEY", cfg.Storage.SecretKey)
}

// GetEnv returns the value of key, or fallback when it is unset or empty.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() types.AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return CurrentConfig
}

// SetCurrentConfig replaces the in-memory config without touching the file. Used by tests
// and by commands that build their config from flags only.
func SetCurrentConfig(cfg types.AppConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	CurrentConfig = cfg
}
