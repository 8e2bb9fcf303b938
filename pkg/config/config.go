package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type FeedConfig struct {
	MinSize            int           `mapstructure:"min_size"`
	MaxSize            int           `mapstructure:"max_size"`
	TTL                time.Duration `mapstructure:"ttl"`
	CategoriesPerFeed  int           `mapstructure:"categories_per_feed"`
	ItemsPerCategory   int           `mapstructure:"items_per_category"`
	MinLength          int           `mapstructure:"min_length"`
	MaxLength          int           `mapstructure:"max_length"`
	RefreshBatchSize   int           `mapstructure:"refresh_batch_size"`
	RefreshBatchDelay  time.Duration `mapstructure:"refresh_batch_delay"`
	FallbackCategories []string      `mapstructure:"fallback_categories"`
}

type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	NewUserInterval   time.Duration `mapstructure:"new_user_interval"`
	AnalyticsInterval time.Duration `mapstructure:"analytics_interval"`
	PeakHours         []int         `mapstructure:"peak_hours"`
	HealthHour        int           `mapstructure:"health_hour"`
	ContentRetention  time.Duration `mapstructure:"content_retention"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.max_tokens", 1200)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("feed.min_size", 3)
	v.SetDefault("feed.max_size", 20)
	v.SetDefault("feed.ttl", "24h")
	v.SetDefault("feed.categories_per_feed", 3)
	v.SetDefault("feed.items_per_category", 2)
	v.SetDefault("feed.min_length", 300)
	v.SetDefault("feed.max_length", 700)
	v.SetDefault("feed.refresh_batch_size", 5)
	v.SetDefault("feed.refresh_batch_delay", "2s")
	v.SetDefault("feed.fallback_categories", []string{"technology", "science", "culture", "health", "business"})
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.refresh_interval", "4h")
	v.SetDefault("scheduler.cleanup_interval", "1h")
	v.SetDefault("scheduler.new_user_interval", "30m")
	v.SetDefault("scheduler.analytics_interval", "2h")
	v.SetDefault("scheduler.peak_hours", []int{7, 12, 17})
	v.SetDefault("scheduler.health_hour", 4)
	v.SetDefault("scheduler.content_retention", "168h")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	return &config, nil
}
