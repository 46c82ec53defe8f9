package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Quality control loop.
	QualityInterval time.Duration `mapstructure:"quality_interval"`
	LowLoss         float64       `mapstructure:"low_loss"`
	MediumLoss      float64       `mapstructure:"medium_loss"`
	Hysteresis      float64       `mapstructure:"hysteresis"`

	// RTCP report retention.
	RtcpWindow int `mapstructure:"rtcp_window"`

	// Frame fingerprint verification.
	FingerprintTTL time.Duration `mapstructure:"fingerprint_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	ApproxMatch    bool          `mapstructure:"approx_match"`

	// ACK summary cadence.
	AckInterval time.Duration `mapstructure:"ack_interval"`

	// Join flood protection.
	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("quality_interval", "5s")
	v.SetDefault("low_loss", 0.02)
	v.SetDefault("medium_loss", 0.05)
	v.SetDefault("hysteresis", 0.02)

	v.SetDefault("rtcp_window", 10)

	v.SetDefault("fingerprint_ttl", "15s")
	v.SetDefault("sweep_interval", "5s")
	v.SetDefault("approx_match", false)

	v.SetDefault("ack_interval", "2s")

	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}
