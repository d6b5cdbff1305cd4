package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron"
	"gopkg.in/yaml.v3"
)

// Config 统一配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Security  SecurityConfig  `yaml:"security"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env      string `yaml:"env"` // dev, staging, production
	Port     string `yaml:"port"`
	Timezone string `yaml:"timezone"` // IANA 时区名，"今天"按此时区计算
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	File   string `yaml:"file"`   // 为空时只输出到 stdout
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWTSecret          string   `yaml:"jwt_secret"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Driver        string `yaml:"driver"` // file, mongo, postgres, sqlite
	DataDir       string `yaml:"data_dir"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	DatabaseDSN   string `yaml:"database_dsn"`
}

// AIConfig 文本生成服务配置
type AIConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// SchedulerConfig 积压巡检调度配置
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // 6 段 cron 表达式（含秒）
	Workers       int    `yaml:"workers"`
	RedisAddr     string `yaml:"redis_addr"` // 为空时使用进程内租约
	RedisPassword string `yaml:"redis_password"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Env:      "dev",
			Port:     "8000",
			Timezone: "Local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Security: SecurityConfig{
			CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			Driver:        "file",
			DataDir:       "./data",
			MongoDatabase: "studysphere",
		},
		AI: AIConfig{
			BaseURL:       "https://openrouter.ai/api/v1",
			Model:         "openai/gpt-4o-mini",
			Timeout:       30 * time.Second,
			MaxConcurrent: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "0 0 2 * * *",
			Workers:  4,
		},
	}
}

// LoadConfig 加载配置：默认值 -> CONFIG_FILE 指定的 YAML 文件 -> 环境变量覆盖
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile 读取 YAML 配置文件并覆盖到 cfg
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(cfg *Config) error {
	cfg.Server.Env = getEnv("ENV", cfg.Server.Env)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Timezone = getEnv("TIMEZONE", cfg.Server.Timezone)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Security.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Security.JWTSecret)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.CORSAllowedOrigins = parseStringList(v)
	}

	cfg.Storage.Driver = getEnv("STORE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.MongoURI = getEnv("MONGO_URI", cfg.Storage.MongoURI)
	cfg.Storage.MongoDatabase = getEnv("MONGO_DATABASE", cfg.Storage.MongoDatabase)
	cfg.Storage.DatabaseDSN = getEnv("DATABASE_DSN", cfg.Storage.DatabaseDSN)

	cfg.AI.BaseURL = getEnv("AI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.APIKey = getEnv("AI_API_KEY", getEnv("OPENROUTER_API_KEY", cfg.AI.APIKey))
	cfg.AI.Model = getEnv("AI_MODEL", cfg.AI.Model)
	if v := os.Getenv("AI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AI_TIMEOUT: %s", v)
		}
		cfg.AI.Timeout = d
	}
	if v := os.Getenv("AI_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AI_MAX_CONCURRENT: %s", v)
		}
		cfg.AI.MaxConcurrent = n
	}

	if v := os.Getenv("SWEEP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_ENABLED: %s", v)
		}
		cfg.Scheduler.Enabled = b
	}
	cfg.Scheduler.Schedule = getEnv("SWEEP_SCHEDULE", cfg.Scheduler.Schedule)
	if v := os.Getenv("SWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_WORKERS: %s", v)
		}
		cfg.Scheduler.Workers = n
	}
	cfg.Scheduler.RedisAddr = getEnv("REDIS_ADDR", cfg.Scheduler.RedisAddr)
	cfg.Scheduler.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Scheduler.RedisPassword)

	return nil
}

// ValidateConfig 验证配置的有效性
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 3. 时区验证
	if _, err := time.LoadLocation(cfg.Server.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid TIMEZONE: %s", cfg.Server.Timezone))
	}

	// 4. 日志级别和格式
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 5. 鉴权：生产环境必须配置 JWT 密钥
	if cfg.Security.JWTSecret != "" && len(cfg.Security.JWTSecret) < 32 {
		errors = append(errors, "AUTH_JWT_SECRET must be at least 32 characters long")
	}
	if cfg.IsProduction() && cfg.Security.JWTSecret == "" {
		errors = append(errors, "AUTH_JWT_SECRET is required in production environment")
	}

	// 6. 存储
	switch cfg.Storage.Driver {
	case "file":
		if cfg.Storage.DataDir == "" {
			errors = append(errors, "DATA_DIR is required when STORE_DRIVER=file")
		}
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			errors = append(errors, "MONGO_URI is required when STORE_DRIVER=mongo")
		}
		if cfg.Storage.MongoDatabase == "" {
			errors = append(errors, "MONGO_DATABASE is required when STORE_DRIVER=mongo")
		}
	case "postgres", "sqlite":
		if cfg.Storage.DatabaseDSN == "" {
			errors = append(errors, fmt.Sprintf("DATABASE_DSN is required when STORE_DRIVER=%s", cfg.Storage.Driver))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid STORE_DRIVER: %s (must be: file, mongo, postgres, sqlite)", cfg.Storage.Driver))
	}

	// 7. AI
	if cfg.AI.BaseURL == "" {
		errors = append(errors, "AI_BASE_URL is required")
	}
	if cfg.AI.Model == "" {
		errors = append(errors, "AI_MODEL is required")
	}
	if cfg.AI.Timeout <= 0 {
		errors = append(errors, "AI_TIMEOUT must be positive")
	}
	if cfg.AI.MaxConcurrent < 1 {
		errors = append(errors, "AI_MAX_CONCURRENT must be at least 1")
	}
	if cfg.IsProduction() && cfg.AI.APIKey == "" {
		errors = append(errors, "AI_API_KEY is required in production environment")
	}

	// 8. 调度
	if cfg.Scheduler.Workers < 1 {
		errors = append(errors, "SWEEP_WORKERS must be at least 1")
	}
	if cfg.Scheduler.Enabled {
		if _, err := cron.Parse(cfg.Scheduler.Schedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SWEEP_SCHEDULE: %s (%v)", cfg.Scheduler.Schedule, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// Location 返回配置的时区，解析失败时回退到 time.Local
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Timezone: %s
  Logging:
    - Level: %s
    - Format: %s
    - File: %s
  Security:
    - JWT Secret: %s
    - CORS Origins: %v
  Storage:
    - Driver: %s
    - Data Dir: %s
    - Mongo URI: %s
    - Database DSN: %s
  AI:
    - Base URL: %s
    - Model: %s
    - API Key: %s
    - Timeout: %s
    - Max Concurrent: %d
  Scheduler:
    - Enabled: %t
    - Schedule: %s
    - Workers: %d
    - Redis: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Server.Timezone,
		c.Log.Level,
		c.Log.Format,
		c.Log.File,
		maskSecret(c.Security.JWTSecret),
		c.Security.CORSAllowedOrigins,
		c.Storage.Driver,
		c.Storage.DataDir,
		maskSecret(c.Storage.MongoURI),
		maskSecret(c.Storage.DatabaseDSN),
		c.AI.BaseURL,
		c.AI.Model,
		maskSecret(c.AI.APIKey),
		c.AI.Timeout,
		c.AI.MaxConcurrent,
		c.Scheduler.Enabled,
		c.Scheduler.Schedule,
		c.Scheduler.Workers,
		c.Scheduler.RedisAddr,
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseStringList 解析逗号分隔的字符串列表
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
