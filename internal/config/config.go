package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"signal-radar/internal/engagement"
	"signal-radar/internal/gateway"
	"signal-radar/internal/normalize"
	"signal-radar/internal/notifier"
	"signal-radar/internal/scheduler"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置。
type AppConfig struct {
	Gateway    gateway.Config         `yaml:"gateway"`
	Scheduler  scheduler.Config       `yaml:"scheduler"`
	Engagement engagement.Config      `yaml:"engagement"`
	Webhook    notifier.WebhookConfig `yaml:"webhook"`
	Server     ServerConfig           `yaml:"server"`
	Database   DatabaseConfig         `yaml:"database"`
	Log        LogConfig              `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load 先加载 .env，再读取 YAML（文件不存在时使用默认值），最后应用环境变量覆盖。
func Load() (AppConfig, error) {
	loadDotEnv(".env")

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadFile 读取 YAML 配置，文件不存在时返回空配置。
func LoadFile(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func applyEnv(cfg *AppConfig) {
	if v := getEnv("SCRAPER_API_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := getEnv("DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getEnv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "signals.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Warnings 列出不会导致启动失败但会被静默回退的配置项，例如未注册的 provider。
func (c AppConfig) Warnings() []string {
	known := make(map[string]struct{})
	for _, p := range normalize.Providers() {
		known[p] = struct{}{}
	}
	jobs := []struct {
		name string
		job  gateway.JobConfig
	}{
		{"profile_posts", c.Gateway.Jobs.ProfilePosts},
		{"reactions", c.Gateway.Jobs.Reactions},
		{"comments", c.Gateway.Jobs.Comments},
		{"profile", c.Gateway.Jobs.Profile},
		{"company", c.Gateway.Jobs.Company},
	}
	var out []string
	for _, j := range jobs {
		provider := strings.TrimSpace(j.job.Provider)
		if provider == "" {
			continue
		}
		if _, ok := known[provider]; !ok {
			out = append(out, fmt.Sprintf("gateway.jobs.%s.provider %q is not registered, falling back to %q", j.name, provider, normalize.ProviderDefault))
		}
	}
	return out
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
