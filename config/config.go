package config

import (
	"fmt"
	"os"

	"github.com/BearBump/ScanBox/internal/carrier"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ScanBox  ScanBoxConfig  `yaml:"scanbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ScanEventsTopicName string `yaml:"scan_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScanBoxConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	APIToken string `yaml:"api_token"`

	// "postgres" (по умолчанию) | "memory"
	StorageDriver string `yaml:"storage_driver"`

	RecordCacheTTLSeconds    int `yaml:"record_cache_ttl_seconds"`
	SubmitRateLimitPerMinute int `yaml:"submit_rate_limit_per_minute"`

	// true только если станции ходят через прокси, который сам ставит X-Station-ID
	TrustStationHeader bool `yaml:"trust_station_header"`

	// Пустой список: таблица по умолчанию (11 -> MercadoLibre, 12 -> Deprisa).
	Carriers []carrier.Rule `yaml:"carriers"`

	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// PostgresDSN собирает строку подключения; ssl_mode по умолчанию disable.
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

// CarrierRules возвращает таблицу классификатора из конфига или таблицу по умолчанию.
func (c *Config) CarrierRules() []carrier.Rule {
	if len(c.ScanBox.Carriers) == 0 {
		return carrier.DefaultRules()
	}
	return c.ScanBox.Carriers
}
