package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	// Driver 选择文档库的驱动："sqlite" 或 "postgres"
	Driver   string         `mapstructure:"driver"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SqliteConfig 定义了SQLite的配置
type SqliteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig 定义了Postgres的配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MatcherConfig 定义了外部曲目识别/混音服务的配置
type MatcherConfig struct {
	BaseURL string        `mapstructure:"baseUrl"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig 定义了音频Blob存储的配置
type StorageConfig struct {
	// Root 是静态文件根目录，哼唱音频保存在 {root}/hums/{uid}/ 之下
	Root string `mapstructure:"root"`
}

// AuthConfig 定义了身份认证相关的配置
type AuthConfig struct {
	// SessionTTL 是会话令牌的有效期
	SessionTTL time.Duration `mapstructure:"sessionTTL"`
	// BcryptCost 是密码哈希的计算成本
	BcryptCost int `mapstructure:"bcryptCost"`
	// MaxLoginAttempts 是单个邮箱在窗口期内允许的登录失败次数
	MaxLoginAttempts int `mapstructure:"maxLoginAttempts"`
	// LoginAttemptWindow 是登录失败计数的窗口期
	LoginAttemptWindow time.Duration `mapstructure:"loginAttemptWindow"`
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. 设置配置文件名和类型
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// 2. 添加配置文件搜索路径，Viper会按顺序查找
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 3. 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9000
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 设置缺省值，保证没有配置文件时也能以开发模式启动
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "hummify.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("matcher.baseUrl", "http://localhost:8001/api")
	v.SetDefault("matcher.timeout", 30*time.Second)
	v.SetDefault("storage.root", "static")
	v.SetDefault("auth.sessionTTL", 7*24*time.Hour)
	v.SetDefault("auth.bcryptCost", 12)
	v.SetDefault("auth.maxLoginAttempts", 5)
	v.SetDefault("auth.loginAttemptWindow", 15*time.Minute)

	// 5. 读取配置文件（找不到文件不是错误，使用缺省值）
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// 6. 将配置反序列化到结构体中，并赋值给全局变量
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	Cfg = &cfg

	return Cfg, nil
}
