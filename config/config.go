package config

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/redis/go-redis/v9"
)

// Config - Global variable to export
var Config AppConfig

// AppConfig defines the worker configuration tree.
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	Queue    QueueConfig    `koanf:"queue"`
	Worker   WorkerConfig   `koanf:"worker"`
	Minio    MinioConfig    `koanf:"minio"`
	Milvus   MilvusConfig   `koanf:"milvus"`
	Model    ModelConfig    `koanf:"model"`
}

// ServerConfig defines process-level settings.
type ServerConfig struct {
	Debug bool `koanf:"debug"`
	// MaxFileSize is the ingestion size ceiling in bytes; files above it are
	// rejected before any processing starts.
	MaxFileSize int64 `koanf:"maxfilesize"`
}

// DatabaseConfig related to database
type DatabaseConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	Version  uint   `koanf:"version"`
	TimeZone string `koanf:"timezone"`
	Pool     struct {
		IdleConnections int           `koanf:"idleconnections"`
		MaxConnections  int           `koanf:"maxconnections"`
		ConnLifeTime    time.Duration `koanf:"connlifetime"`
	}
}

// CacheConfig related to Redis
type CacheConfig struct {
	Redis struct {
		RedisOptions redis.Options `koanf:"redisoptions"`
	}
}

// QueueConfig defines the task stream settings.
type QueueConfig struct {
	Stream        string        `koanf:"stream"`
	ConsumerGroup string        `koanf:"consumergroup"`
	// VisibilityTimeout is how long a claimed-but-unacknowledged task stays
	// invisible before it becomes eligible for redelivery to another worker.
	VisibilityTimeout time.Duration `koanf:"visibilitytimeout"`
	// BlockTimeout bounds a single blocking read so the claim loop can
	// observe cancellation.
	BlockTimeout time.Duration `koanf:"blocktimeout"`
}

// WorkerConfig defines the concurrency ceilings and batch sizes.
type WorkerConfig struct {
	// TaskConcurrency is the number of tasks processed simultaneously.
	TaskConcurrency int64 `koanf:"taskconcurrency"`
	// ParseConcurrency serializes the heavy chunk-extraction sub-stage.
	ParseConcurrency int64 `koanf:"parseconcurrency"`
	// EmbedConcurrency bounds concurrent embedding batches across tasks.
	EmbedConcurrency int64 `koanf:"embedconcurrency"`
	// EmbedBatchSize is the number of chunk texts per embedding call.
	EmbedBatchSize int `koanf:"embedbatchsize"`
	// DocBulkSize is the number of chunks per bulk-insert call.
	DocBulkSize int `koanf:"docbulksize"`
}

// MinioConfig is the object store configuration.
type MinioConfig struct {
	Host       string `koanf:"host"`
	Port       string `koanf:"port"`
	RootUser   string `koanf:"rootuser"`
	RootPwd    string `koanf:"rootpwd"`
	BucketName string `koanf:"bucketname"`
}

// MilvusConfig is the milvus configuration.
type MilvusConfig struct {
	Host string `koanf:"host"`
	Port string `koanf:"port"`
}

// ModelConfig defines the configuration for AI model providers
type ModelConfig struct {
	OpenAI OpenAIConfig `koanf:"openai"`
	Gemini GeminiConfig `koanf:"gemini"`
}

// OpenAIConfig defines the configuration for OpenAI
type OpenAIConfig struct {
	APIKey string `koanf:"apikey"`
}

// GeminiConfig defines the configuration for Gemini
type GeminiConfig struct {
	APIKey string `koanf:"apikey"`
}

// Init - Assign global config to decoded config struct
func Init(filePath string) error {
	k := koanf.New(".")
	parser := yaml.Parser()

	if err := k.Load(confmap.Provider(map[string]any{
		"server.maxfilesize":      50 * 1024 * 1024,
		"database.version":        1,
		"queue.stream":            "ingest:tasks",
		"queue.consumergroup":     "ingest-worker",
		"queue.visibilitytimeout": "10m",
		"queue.blocktimeout":      "5s",
		"worker.taskconcurrency":  5,
		"worker.parseconcurrency": 1,
		"worker.embedconcurrency": 4,
		"worker.embedbatchsize":   16,
		"worker.docbulksize":      4,
	}, "."), nil); err != nil {
		log.Fatal(err.Error())
	}

	if err := k.Load(file.Provider(filePath), parser); err != nil {
		log.Fatal(err.Error())
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return err
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return err
	}

	return ValidateConfig(&Config)
}

// ValidateConfig is for custom validation rules for the configuration
func ValidateConfig(cfg *AppConfig) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return nil
}

var defaultConfigPath = "config/config.yaml"

// ParseConfigFlag allows clients to specify the relative path to the file from
// which the configuration will be loaded.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	flag.Parse()

	return *configPath
}
