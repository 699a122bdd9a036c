// config.go

package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 服务器配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Game        GameConfig        `mapstructure:"game"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Pool        PoolConfig        `mapstructure:"pool"`
}

// ServerConfig 服务器基本配置
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	GatewayPort int    `mapstructure:"gateway_port"`
	GamePort    int    `mapstructure:"game_port"`
	MatchPort   int    `mapstructure:"match_port"`
	PoolPort    int    `mapstructure:"pool_port"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GameConfig 对局规则配置
type GameConfig struct {
	BoardSize     int `mapstructure:"board_size"`     // 棋盘边长，默认15
	WinLength     int `mapstructure:"win_length"`     // 连珠获胜长度，默认5
	EloKFactor    int `mapstructure:"elo_k_factor"`   // ELO K系数，默认32
	InitialRating int `mapstructure:"initial_rating"` // 初始ELO分数，默认1200
}

// MatchmakingConfig 匹配配置
type MatchmakingConfig struct {
	BaseEloRange   int `mapstructure:"base_elo_range"`  // 基础ELO搜索范围，默认±100
	ExpandInterval int `mapstructure:"expand_interval"` // 范围扩展间隔(秒)，默认10
	ExpandStep     int `mapstructure:"expand_step"`     // 每次扩展幅度，默认10
	MaxExpand      int `mapstructure:"max_expand"`      // 最大扩展量，默认500
	EntryTTL       int `mapstructure:"entry_ttl"`       // 队列条目过期时间(秒)，默认300
	CleanupPeriod  int `mapstructure:"cleanup_period"`  // 过期清理周期(秒)，默认30
}

// PoolConfig 服务器池配置
type PoolConfig struct {
	HeartbeatTTL int    `mapstructure:"heartbeat_ttl"` // 心跳存活时间(秒)，默认60
	SweepPeriod  int    `mapstructure:"sweep_period"`  // 死亡服务器清理周期(秒)，默认30
	Region       string `mapstructure:"region"`        // 本服务器区域标签
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig Config
)

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) error {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("无法读取配置文件: %w", err)
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("无法解析配置文件: %w", err)
	}

	return nil
}

// setDefaults 设置规则类配置的默认值
func setDefaults() {
	viper.SetDefault("game.board_size", 15)
	viper.SetDefault("game.win_length", 5)
	viper.SetDefault("game.elo_k_factor", 32)
	viper.SetDefault("game.initial_rating", 1200)

	viper.SetDefault("matchmaking.base_elo_range", 100)
	viper.SetDefault("matchmaking.expand_interval", 10)
	viper.SetDefault("matchmaking.expand_step", 10)
	viper.SetDefault("matchmaking.max_expand", 500)
	viper.SetDefault("matchmaking.entry_ttl", 300)
	viper.SetDefault("matchmaking.cleanup_period", 30)

	viper.SetDefault("server.max_sessions", 1000)

	viper.SetDefault("pool.heartbeat_ttl", 60)
	viper.SetDefault("pool.sweep_period", 30)
	viper.SetDefault("pool.region", "ap-southeast-1")
}

// GetDSN 获取PostgreSQL连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// GetRedisAddr 获取Redis连接地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
