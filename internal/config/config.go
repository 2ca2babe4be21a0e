// Package config 负责加载和管理 chatdesk 的配置。
// 配置来源优先级（从高到低）：
// 1. 环境变量（OPENAI_API_KEY, ASSISTANT_ID, VECTOR_STORE_ID, EMAIL_PASSWORD 等）
// 2. 工作目录下的 .env 文件（只填充尚未设置的环境变量）
// 3. --config flag 指定的配置文件路径
// 4. ~/.config/chatdesk/config.yaml
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// OpenAIConfig 远端 assistant 服务的配置
type OpenAIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	AssistantID   string `yaml:"assistant_id"`
	VectorStoreID string `yaml:"vector_store_id"`

	// Model 仅用于 `chatdesk assistant create`
	Model string `yaml:"model"`

	// Instructions 每次 run 追加的指令（空则使用 assistant 自身的指令）
	Instructions string `yaml:"instructions"`
}

// EmailConfig SMTP 发信配置
type EmailConfig struct {
	From     string `yaml:"from"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

// Config 是 chatdesk 的完整配置结构
type Config struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Email  EmailConfig  `yaml:"email"`

	// RunTimeout 单次 run 的上限（streaming 与 polling 共用，默认 60s）
	RunTimeout time.Duration `yaml:"run_timeout"`

	// RequestTimeout 每个远端 API 调用的超时（默认 30s）
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// PollInterval polling 路径查询 run 状态的间隔（默认 1s）
	PollInterval time.Duration `yaml:"poll_interval"`

	// DownloadDir 非空时，assistant 生成的文件/图片会复制到该目录
	DownloadDir string `yaml:"download_dir"`

	LogLevel string `yaml:"log_level"`

	// OTLPEndpoint 非空时启用 OpenTelemetry trace 导出
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model: "gpt-4o",
		},
		Email: EmailConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		RunTimeout:     60 * time.Second,
		RequestTimeout: 30 * time.Second,
		PollInterval:   time.Second,
		LogLevel:       "info",
	}
}

// DefaultPath returns ~/.config/chatdesk/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "chatdesk", "config.yaml")
}

// Load 加载配置文件，合并环境变量覆盖
func Load(configPath string) (*Config, error) {
	return load(configPath, os.Getenv)
}

func load(configPath string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	// 读取配置文件（不存在时使用默认配置）
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	if err := applyEnvOverrides(cfg, getenv); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// LoadDotEnv 加载 .env 文件；文件不存在不是错误。
// godotenv 不会覆盖已经存在的环境变量。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// applyEnvOverrides 将环境变量覆盖到配置中
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := getenv("ASSISTANT_ID"); v != "" {
		cfg.OpenAI.AssistantID = v
	}
	if v := getenv("VECTOR_STORE_ID"); v != "" {
		cfg.OpenAI.VectorStoreID = v
	}
	if v := getenv("CHATDESK_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}

	// 邮件
	if v := getenv("EMAIL_PASSWORD"); v != "" {
		cfg.Email.Password = v
	}
	if v := getenv("EMAIL_FROM"); v != "" {
		cfg.Email.From = v
	}
	if v := getenv("SMTP_HOST"); v != "" {
		cfg.Email.Host = v
	}
	if v := getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.Email.Port = port
	}

	if v := getenv("CHATDESK_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CHATDESK_RUN_TIMEOUT %q: %w", v, err)
		}
		cfg.RunTimeout = d
	}
	if v := getenv("CHATDESK_DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := getenv("CHATDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	return nil
}

// fillDefaults 将配置文件中写成 0 的时长恢复为默认值
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.RunTimeout <= 0 {
		c.RunTimeout = def.RunTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Email.Port == 0 {
		c.Email.Port = def.Email.Port
	}
}

// Validate checks the settings every turn needs. A failure is a
// configuration error for the turn, not for the whole process.
func (c *Config) Validate() error {
	const op cerrors.Op = "config.Validate"
	if c.OpenAI.APIKey == "" {
		return cerrors.E(op, cerrors.KindConfig,
			"OpenAI API key is not set; configure OPENAI_API_KEY or openai.api_key")
	}
	if c.OpenAI.AssistantID == "" {
		return cerrors.E(op, cerrors.KindConfig,
			"assistant ID is not set; configure ASSISTANT_ID or openai.assistant_id")
	}
	return nil
}

// ValidateEmail checks the settings required for email delivery.
func (c *Config) ValidateEmail() error {
	const op cerrors.Op = "config.ValidateEmail"
	switch {
	case c.Email.Password == "":
		return cerrors.E(op, cerrors.KindConfig, "EMAIL_PASSWORD is not set")
	case c.Email.From == "":
		return cerrors.E(op, cerrors.KindConfig, "sender address is not set; configure EMAIL_FROM or email.from")
	case c.Email.Host == "":
		return cerrors.E(op, cerrors.KindConfig, "SMTP host is not set; configure SMTP_HOST or email.host")
	}
	return nil
}
