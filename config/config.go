package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	MySQL       MySQLConfig       `yaml:"mysql"`
	Redis       RedisConfig       `yaml:"redis"`
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
	Snowflake   SnowflakeConfig   `yaml:"snowflake"`
	Shortener   ShortenerConfig   `yaml:"shortener"`
	Pagination  PaginationConfig  `yaml:"pagination"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Mode    string `yaml:"mode"`
	BaseURL string `yaml:"base_url"`
}

// MySQLConfig represents MySQL configuration
type MySQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BloomFilterConfig represents Bloom filter configuration
type BloomFilterConfig struct {
	Capacity          uint    `yaml:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
}

// SnowflakeConfig represents the request-ID generator configuration
type SnowflakeConfig struct {
	DatacenterID int64 `yaml:"datacenter_id"`
	WorkerID     int64 `yaml:"worker_id"`
}

// ShortenerConfig holds the short-code codec settings.
//
// Changing the salt invalidates every previously issued code: decode is
// only the inverse of encode under the salt that produced the code. Treat
// the salt as immutable once the service has issued URLs.
type ShortenerConfig struct {
	Salt      string `yaml:"salt"`
	MinLength int    `yaml:"min_length"`
	Alphabet  string `yaml:"alphabet"`
}

// PaginationConfig bounds list endpoints
type PaginationConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// DSN returns MySQL data source name. The connection is pinned to UTC so
// timestamps stored without zone information compare correctly.
func (m *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// Addr returns Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	if host := os.Getenv("MYSQL_HOST"); host != "" {
		cfg.MySQL.Host = host
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if salt := os.Getenv("SHORTENER_SALT"); salt != "" {
		cfg.Shortener.Salt = salt
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Shortener.MinLength <= 0 {
		c.Shortener.MinLength = 6
	}
	if c.Pagination.DefaultLimit <= 0 {
		c.Pagination.DefaultLimit = 100
	}
	if c.Pagination.MaxLimit <= 0 {
		c.Pagination.MaxLimit = 500
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
}
