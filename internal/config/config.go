package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Model          ModelConfig          `mapstructure:"model"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		UserInteractions string `mapstructure:"user_interactions"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecommendationConfig tunes the candidate generation and re-ranking
// pipeline.
type RecommendationConfig struct {
	DefaultLimit int              `mapstructure:"default_limit"`
	MaxLimit     int              `mapstructure:"max_limit"`
	Candidates   CandidatesConfig `mapstructure:"candidates"`
	MMR          MMRConfig        `mapstructure:"mmr"`
	Novelty      NoveltyConfig    `mapstructure:"novelty"`
	Caching      CachingConfig    `mapstructure:"caching"`
}

type CandidatesConfig struct {
	PerSourceLimit      int           `mapstructure:"per_source_limit"`
	MergedLimit         int           `mapstructure:"merged_limit"`
	SourceTimeout       time.Duration `mapstructure:"source_timeout"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	GraphHops           int           `mapstructure:"graph_hops"`
	GraphSeedLimit      int           `mapstructure:"graph_seed_limit"`
	MinCollabInteracts  int           `mapstructure:"min_collab_interactions"`
}

type MMRConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

type NoveltyConfig struct {
	BoostFactor float64 `mapstructure:"boost_factor"`
	FloorRatio  float64 `mapstructure:"floor_ratio"`
}

type CachingConfig struct {
	UserEmbeddingTTL   time.Duration `mapstructure:"user_embedding_ttl"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
	ResourceTTL        time.Duration `mapstructure:"resource_ttl"`
}

// ModelConfig carries the collaborative scorer hyperparameters and the
// system-wide resource embedding dimensionality.
type ModelConfig struct {
	EmbeddingDim  int     `mapstructure:"embedding_dim"` // resource/user embedding space (D)
	FactorDim     int     `mapstructure:"factor_dim"`    // learned id-embedding tables (E)
	HiddenLayers  []int   `mapstructure:"hidden_layers"`
	NegativeRatio int     `mapstructure:"negative_ratio"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	Epochs        int     `mapstructure:"epochs"`
	SnapshotPath  string  `mapstructure:"snapshot_path"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")

	viper.SetDefault("kafka.topics.user_interactions", "user-interactions")

	viper.SetDefault("auth.token_ttl", "24h")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("recommendation.default_limit", 20)
	viper.SetDefault("recommendation.max_limit", 100)
	viper.SetDefault("recommendation.candidates.per_source_limit", 100)
	viper.SetDefault("recommendation.candidates.merged_limit", 100)
	viper.SetDefault("recommendation.candidates.source_timeout", "80ms")
	viper.SetDefault("recommendation.candidates.similarity_threshold", 0.3)
	viper.SetDefault("recommendation.candidates.graph_hops", 2)
	viper.SetDefault("recommendation.candidates.graph_seed_limit", 10)
	viper.SetDefault("recommendation.candidates.min_collab_interactions", 5)
	viper.SetDefault("recommendation.mmr.pool_size", 50)
	viper.SetDefault("recommendation.novelty.boost_factor", 0.2)
	viper.SetDefault("recommendation.novelty.floor_ratio", 0.2)
	viper.SetDefault("recommendation.caching.user_embedding_ttl", "5m")
	viper.SetDefault("recommendation.caching.recommendations_ttl", "60s")
	viper.SetDefault("recommendation.caching.resource_ttl", "1h")

	viper.SetDefault("model.embedding_dim", 768)
	viper.SetDefault("model.factor_dim", 64)
	viper.SetDefault("model.hidden_layers", []int{128, 64, 32})
	viper.SetDefault("model.negative_ratio", 4)
	viper.SetDefault("model.learning_rate", 0.01)
	viper.SetDefault("model.epochs", 5)
	viper.SetDefault("model.snapshot_path", "./models/collab_scorer.json")

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
