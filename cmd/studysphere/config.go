package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL = "http://localhost:8000"
	defaultOutput    = "text"
)

// Config CLI 连接配置
type Config struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	UserID    string `yaml:"user_id"` // 服务端未配置 JWT 密钥时以此身份访问
	Output    string `yaml:"-"`
}

// setting 一项配置对应的环境变量和命令行标志
type setting struct {
	env   string
	flag  string
	field func(*Config) *string
}

var settings = []setting{
	{"STUDYSPHERE_SERVER_URL", "server-url", func(c *Config) *string { return &c.ServerURL }},
	{"STUDYSPHERE_TOKEN", "token", func(c *Config) *string { return &c.Token }},
	{"STUDYSPHERE_USER_ID", "user-id", func(c *Config) *string { return &c.UserID }},
	{"", "output", func(c *Config) *string { return &c.Output }},
}

// LoadConfig 按 配置文件 < 环境变量 < 命令行标志 的顺序合并配置
func LoadConfig(cmd *cobra.Command) *Config {
	cfg := &Config{}
	if path := configPath(); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	for _, s := range settings {
		dst := s.field(cfg)
		if s.env != "" {
			if v := os.Getenv(s.env); v != "" {
				*dst = v
			}
		}
		if v, _ := cmd.Flags().GetString(s.flag); v != "" {
			*dst = v
		}
	}

	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if cfg.Output == "" {
		cfg.Output = defaultOutput
	}
	return cfg
}

// configPath 返回 ~/.studysphere/config.yaml，无法确定家目录时返回空
func configPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".studysphere", "config.yaml")
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("server-url", "", "服务器地址 (env: STUDYSPHERE_SERVER_URL, 默认: "+defaultServerURL+")")
	flags.String("token", "", "JWT 令牌 (env: STUDYSPHERE_TOKEN)")
	flags.String("user-id", "", "开发环境用户ID (env: STUDYSPHERE_USER_ID)")
	flags.StringP("output", "o", "", "输出格式: json / text (默认: text)")
}
