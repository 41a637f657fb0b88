package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Deepskin DeepskinConfig `mapstructure:"deepskin"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
	// SaveDir 非空时保留上传原图的审计副本
	SaveDir string `mapstructure:"save_dir"`
}

// DeepskinConfig 分割模型服务的连接参数
type DeepskinConfig struct {
	URL        string        `mapstructure:"url"`
	Tolerance  float64       `mapstructure:"tolerance"`
	KernelSize int           `mapstructure:"kernel_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Verbose    bool          `mapstructure:"verbose"`
}

// GeminiConfig 远程视觉语言模型参数
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	// FallbackModels 按优先级探测的候选模型列表
	FallbackModels []string `mapstructure:"fallback_models"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnv()
	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		cfg = getDefaultConfig()
		cfg.applyEnv()
	}
	return cfg
}

// applyEnv 环境变量优先于配置文件
func (c *Config) applyEnv() {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if url := os.Getenv("DEEPSKIN_URL"); url != "" {
		c.Deepskin.URL = url
	}
}

func defaultFallbackModels() []string {
	return []string{
		"gemini-2.5-flash-image",
		"gemini-1.5-flash",
		"gemini-1.5-pro",
		"gemini-pro-vision",
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg"})
	v.SetDefault("upload.save_dir", "")

	v.SetDefault("deepskin.url", "http://localhost:9000")
	v.SetDefault("deepskin.tolerance", 0.95)
	v.SetDefault("deepskin.kernel_size", 200)
	v.SetDefault("deepskin.timeout", 60*time.Second)
	v.SetDefault("deepskin.verbose", true)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.fallback_models", defaultFallbackModels())
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg"},
		},
		Deepskin: DeepskinConfig{
			URL:        "http://localhost:9000",
			Tolerance:  0.95,
			KernelSize: 200,
			Timeout:    60 * time.Second,
			Verbose:    true,
		},
		Gemini: GeminiConfig{
			FallbackModels: defaultFallbackModels(),
		},
	}
}
