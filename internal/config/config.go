package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	AgentID          string `mapstructure:"agent_id"`
	ListenAddr       string `mapstructure:"listen_addr"`
	APIKey           string `mapstructure:"api_key"`
	TargetFPS        int    `mapstructure:"target_fps"`
	JPEGQuality      int    `mapstructure:"jpeg_quality"`
	DefaultMonitorID string `mapstructure:"default_monitor_id"`
	MaxSessions      int    `mapstructure:"max_sessions"`
	LogLevel         string `mapstructure:"log_level"`
	LogFormat        string `mapstructure:"log_format"`
	LogFile          string `mapstructure:"log_file"`
}

func Default() *Config {
	return &Config{
		ListenAddr:  ":8090",
		TargetFPS:   15,
		JPEGQuality: 70,
		MaxSessions: 4,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OPENCTROL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("agent_id", cfg.AgentID)
	viper.Set("listen_addr", cfg.ListenAddr)
	viper.Set("api_key", cfg.APIKey)
	viper.Set("target_fps", cfg.TargetFPS)
	viper.Set("jpeg_quality", cfg.JPEGQuality)
	viper.Set("default_monitor_id", cfg.DefaultMonitorID)
	viper.Set("max_sessions", cfg.MaxSessions)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_file", cfg.LogFile)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "agent.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}

	// Restrict config file to owner-only access (contains the API key)
	return os.Chmod(cfgPath, 0600)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "Openctrol")
	case "darwin":
		return "/Library/Application Support/Openctrol"
	default:
		return "/etc/openctrol"
	}
}
