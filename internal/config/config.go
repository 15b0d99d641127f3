package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"` // development, production
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	Portal struct {
		BaseURL string `yaml:"base_url"` // 邮件和 hook 消息里回链到门户
	} `yaml:"portal"`

	Session struct {
		Secret string `yaml:"secret"`
	} `yaml:"session"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
	} `yaml:"email"`

	Security struct {
		EncryptionKey string `yaml:"encryption_key"` // 加密集成凭证，经 sha256 派生密钥
	} `yaml:"security"`

	Hooks struct {
		Workers       int           `yaml:"workers"`
		QueueCapacity int           `yaml:"queue_capacity"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxAttempts   uint          `yaml:"max_attempts"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
	} `yaml:"hooks"`
}

// Load 读取 .env、可选的 YAML 文件，最后用环境变量覆盖
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, finding env vars from system")
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.Env = "development"
	// Fallback for local dev if not set
	cfg.Database.DSN = "host=localhost user=postgres password=postgres dbname=feedbackhub port=5432 sslmode=disable TimeZone=UTC"
	cfg.Portal.BaseURL = "http://localhost:8080"
	cfg.Session.Secret = "secret_key_change_me"
	cfg.Email.SMTPPort = 587
	cfg.Email.FromName = "Feedback"
	cfg.Hooks.Workers = 4
	cfg.Hooks.QueueCapacity = 1000
	cfg.Hooks.Timeout = 15 * time.Second
	cfg.Hooks.MaxAttempts = 3
	cfg.Hooks.RetryDelay = time.Second
	return &cfg
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.Port, "PORT")
	setString(&c.Server.Env, "SERVER_ENV")
	setString(&c.Database.DSN, "DATABASE_URL")
	setString(&c.Portal.BaseURL, "SITE_URL")
	setString(&c.Session.Secret, "SESSION_SECRET")
	setString(&c.Email.SMTPHost, "SMTP_HOST")
	setInt(&c.Email.SMTPPort, "SMTP_PORT")
	setString(&c.Email.SMTPUsername, "SMTP_USER")
	setString(&c.Email.SMTPPassword, "SMTP_PASS")
	setString(&c.Email.FromEmail, "SMTP_FROM")
	setString(&c.Email.FromName, "SMTP_FROM_NAME")
	setString(&c.Security.EncryptionKey, "ENCRYPTION_KEY")
	setInt(&c.Hooks.Workers, "HOOK_WORKERS")
	setInt(&c.Hooks.QueueCapacity, "HOOK_QUEUE_CAPACITY")
	setDuration(&c.Hooks.Timeout, "HOOK_TIMEOUT")
	setDuration(&c.Hooks.RetryDelay, "HOOK_RETRY_DELAY")
	if v := os.Getenv("HOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Hooks.MaxAttempts = uint(n)
		}
	}
	c.Portal.BaseURL = strings.TrimRight(c.Portal.BaseURL, "/")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.Portal.BaseURL == "" {
		errs = append(errs, errors.New("portal base url is required"))
	}
	if c.Hooks.Workers <= 0 {
		errs = append(errs, errors.New("hooks.workers must be positive"))
	}
	if c.Hooks.MaxAttempts == 0 {
		errs = append(errs, errors.New("hooks.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}

// SMTPEnabled 缺少任一 SMTP 配置时邮件降级为日志输出
func (c *Config) SMTPEnabled() bool {
	e := c.Email
	return e.SMTPHost != "" && e.SMTPPort != 0 && e.SMTPUsername != "" && e.SMTPPassword != "" && e.FromEmail != ""
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
