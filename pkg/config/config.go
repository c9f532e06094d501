package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        App        `yaml:"app"`
	Database   Database   `yaml:"database"`
	WhatsApp   WhatsApp   `yaml:"whatsapp"`
	Bulk       Bulk       `yaml:"bulk"`
	Automation Automation `yaml:"automation"`
}

type App struct {
	Name string `yaml:"name"`
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type Database struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	Name string `yaml:"name"`
}

type WhatsApp struct {
	// AuthDir holds one sqlite credential store per session.
	AuthDir          string        `yaml:"auth_dir"`
	ReconnectBase    time.Duration `yaml:"reconnect_base"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	ReconnectCap     int           `yaml:"reconnect_cap"`
	ConflictRetry    time.Duration `yaml:"conflict_retry"`
	RecoveryCooldown time.Duration `yaml:"recovery_cooldown"`
}

type Bulk struct {
	// PollInterval bounds how long pause/cancel take to be observed.
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Automation struct {
	DocsDir             string  `yaml:"docs_dir"`
	GroupAutomation     bool    `yaml:"group_automation"`
	SingleActiveSession bool    `yaml:"single_active_session"`
	RepliesPerSecond    float64 `yaml:"replies_per_second"`
}

func InitConfig() *Config {
	var configs Config
	file_name, _ := filepath.Abs("./config.yaml")
	yaml_file, _ := os.ReadFile(file_name)
	yaml.Unmarshal(yaml_file, &configs)

	// Override with environment variables if they exist (for Docker)
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		configs.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		configs.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		configs.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		configs.Database.Pass = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		configs.Database.Name = dbName
	}

	if appHost := os.Getenv("APP_HOST"); appHost != "" {
		configs.App.Host = appHost
	}
	if appPort := os.Getenv("APP_PORT"); appPort != "" {
		configs.App.Port = appPort
	}
	if appName := os.Getenv("APP_NAME"); appName != "" {
		configs.App.Name = appName
	}

	if authDir := os.Getenv("WA_AUTH_DIR"); authDir != "" {
		configs.WhatsApp.AuthDir = authDir
	}
	if docsDir := os.Getenv("AUTOMATION_DOCS_DIR"); docsDir != "" {
		configs.Automation.DocsDir = docsDir
	}
	if group := os.Getenv("AUTOMATION_GROUPS"); group != "" {
		configs.Automation.GroupAutomation, _ = strconv.ParseBool(group)
	}

	configs.applyDefaults()
	return &configs
}

func (c *Config) applyDefaults() {
	if c.WhatsApp.AuthDir == "" {
		c.WhatsApp.AuthDir = "./data/sessions"
	}
	if c.WhatsApp.ReconnectBase <= 0 {
		c.WhatsApp.ReconnectBase = 5 * time.Second
	}
	if c.WhatsApp.ReconnectMax <= 0 {
		c.WhatsApp.ReconnectMax = 5 * time.Minute
	}
	if c.WhatsApp.ReconnectCap <= 0 {
		c.WhatsApp.ReconnectCap = 6
	}
	if c.WhatsApp.ConflictRetry <= 0 {
		c.WhatsApp.ConflictRetry = 10 * time.Second
	}
	if c.WhatsApp.RecoveryCooldown <= 0 {
		c.WhatsApp.RecoveryCooldown = 60 * time.Second
	}
	if c.Bulk.PollInterval <= 0 || c.Bulk.PollInterval > 500*time.Millisecond {
		c.Bulk.PollInterval = 500 * time.Millisecond
	}
	if c.Automation.DocsDir == "" {
		c.Automation.DocsDir = "./data/automation"
	}
	if c.Automation.RepliesPerSecond <= 0 {
		c.Automation.RepliesPerSecond = 1
	}
}
