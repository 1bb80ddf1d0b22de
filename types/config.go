package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Server        ServerConfig   `yaml:"server" json:"server"`
	Upload        UploadConfig   `yaml:"upload" json:"upload"`
	Database      DatabaseConfig `yaml:"database" json:"database"`
	Vertex        VertexConfig   `yaml:"vertex" json:"vertex"`
	Queue         QueueConfig    `yaml:"queue" json:"queue"`
	Storage       StorageConfig  `yaml:"storage" json:"storage"`
	PublicBaseUrl string         `yaml:"publicBaseUrl,omitempty" json:"publicBaseUrl,omitempty"` // used for upload QR codes, e.g. http://192.168.1.10:8000
}

type ServerConfig struct {
	Port              int   `yaml:"port" json:"port"`
	BodyLimitBytes    int64 `yaml:"bodyLimitBytes" json:"bodyLimitBytes"`
	OcrTimeoutSeconds int   `yaml:"ocrTimeoutSeconds" json:"ocrTimeoutSeconds"`
}

// UploadConfig holds the limits and timings of the upload pipeline.
type UploadConfig struct {
	MaxFileCount             int   `yaml:"maxFileCount" json:"maxFileCount"`
	MaxFileSizeBytes         int64 `yaml:"maxFileSizeBytes" json:"maxFileSizeBytes"`
	EventBufferCapacity      int   `yaml:"eventBufferCapacity" json:"eventBufferCapacity"`
	HeartbeatIntervalSeconds int   `yaml:"heartbeatIntervalSeconds" json:"heartbeatIntervalSeconds"`
	SessionTimeoutSeconds    int   `yaml:"sessionTimeoutSeconds" json:"sessionTimeoutSeconds"`
	// run OCR on each validated file before moving to the next one
	ExtractInline bool `yaml:"extractInline" json:"extractInline"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" json:"dsn"` // empty means in-memory storage
}

type VertexConfig struct {
	ProjectId         string `yaml:"projectId" json:"projectId"`
	Region            string `yaml:"region" json:"region"`
	Model             string `yaml:"model" json:"model"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" json:"requestsPerMinute"`
}

type QueueConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	RedisAddr   string `yaml:"redisAddr" json:"redisAddr"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"accessKey" json:"accessKey"`
	SecretKey string `yaml:"secretKey" json:"secretKey"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	UseSSL    bool   `yaml:"useSSL" json:"useSSL"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
}
