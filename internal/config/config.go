package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса зон.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Scan      ScanConfig      `yaml:"scan"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	DevWorld  DevWorldConfig  `yaml:"dev_world"`
}

type LoggingConfig struct {
	Level          string `yaml:"level"`
	ComponentFiles bool   `yaml:"component_files"`
}

// ScanConfig параметры поиска маяков
type ScanConfig struct {
	Radius           int           `yaml:"radius"`
	Workers          int           `yaml:"workers"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type IndexConfig struct {
	MaxCacheEntries int `yaml:"max_cache_entries"`
	// OptimizeInterval период чистки кэша локаций; отрицательное значение отключает чистку
	OptimizeInterval time.Duration `yaml:"optimize_interval"`
}

// StorageConfig выбирает backend документного хранилища
type StorageConfig struct {
	Backend string      `yaml:"backend"` // badger | redis | mongo | maria | memory
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
	Mongo   MongoConfig `yaml:"mongo"`
	Maria   MariaConfig `yaml:"maria"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type MariaConfig struct {
	DSN string `yaml:"dsn"`
}

// CacheConfig настройки распределённой инвалидации кэша локаций
type CacheConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	NodeID  string `yaml:"node_id"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
	// JWTSecret секрет подписи токенов операторов (base64); пустой отключает проверку
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL срок жизни токена, выданного через /api/auth/login
	TokenTTL  time.Duration    `yaml:"token_ttl"`
	Operators []OperatorConfig `yaml:"operators"`
}

// OperatorConfig учетная запись оператора; пароль хранится bcrypt-хэшем
type OperatorConfig struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// DevWorldConfig описывает генерируемый мир для локальной разработки
type DevWorldConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Seed    int64  `yaml:"seed"`
	Size    int    `yaml:"size"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Scan: ScanConfig{
			Radius:           300,
			Workers:          4,
			ProgressInterval: 5 * time.Second,
		},
		Index: IndexConfig{MaxCacheEntries: 10000},
		Storage: StorageConfig{
			Backend: "badger",
			Path:    "data",
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "zones:"},
			Mongo:   MongoConfig{URI: "mongodb://localhost:27017", Database: "shopzones", Collection: "documents"},
		},
		Cache:     CacheConfig{Subject: "zones.cache.invalidation"},
		EventBus:  EventBusConfig{Stream: "ZONES", Retention: 24, Capacity: 1024},
		Server:    ServerConfig{RESTPort: 8088, MetricsPort: 2112},
		Telemetry: TelemetryConfig{ServiceName: "shopzones"},
		DevWorld:  DevWorldConfig{Name: "world", Seed: 42, Size: 64},
	}
}

// GetJWTSecret возвращает секрет токенов: config -> ZONES_JWT_SECRET
func (s *ServerConfig) GetJWTSecret() string {
	if s.JWTSecret != "" {
		return s.JWTSecret
	}
	return os.Getenv("ZONES_JWT_SECRET")
}

// GetTokenTTL возвращает срок жизни токена входа, по умолчанию 12 часов
func (s *ServerConfig) GetTokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return 12 * time.Hour
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getIntWithEnvFallback(s.RESTPort, "ZONES_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getIntWithEnvFallback(s.MetricsPort, "ZONES_METRICS_PORT", 2112)
}

// GetRadius возвращает радиус сканирования
func (s *ScanConfig) GetRadius() int {
	return getIntWithEnvFallback(s.Radius, "ZONES_SCAN_RADIUS", 300)
}

// GetWorkers возвращает количество воркеров сканирования
func (s *ScanConfig) GetWorkers() int {
	return getIntWithEnvFallback(s.Workers, "ZONES_SCAN_WORKERS", 4)
}

// GetMaxCacheEntries возвращает лимит кэша локаций
func (i *IndexConfig) GetMaxCacheEntries() int {
	return getIntWithEnvFallback(i.MaxCacheEntries, "ZONES_MAX_CACHE_ENTRIES", 10000)
}

// GetOptimizeInterval возвращает период чистки кэша (по умолчанию 10 минут, 0 если отключена)
func (i *IndexConfig) GetOptimizeInterval() time.Duration {
	switch {
	case i.OptimizeInterval < 0:
		return 0
	case i.OptimizeInterval == 0:
		return 10 * time.Minute
	}
	return i.OptimizeInterval
}

// GetBackend возвращает имя backend хранилища (config -> env -> badger)
func (s *StorageConfig) GetBackend() string {
	if s.Backend != "" {
		return s.Backend
	}
	if env := os.Getenv("ZONES_STORAGE_BACKEND"); env != "" {
		return env
	}
	return "badger"
}

// getIntWithEnvFallback возвращает значение с приоритетом: config -> env -> default
func getIntWithEnvFallback(configValue int, envVar string, defaultValue int) int {
	// Если значение задано в конфиге и больше 0, используем его
	if configValue > 0 {
		return configValue
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if v, err := strconv.Atoi(envVal); err == nil && v > 0 {
			return v
		}
	}

	return defaultValue
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV ZONES_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("ZONES_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, используем дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	return cfg, nil
}
