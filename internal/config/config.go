package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string    `yaml:"log-level" env-default:"info"`
	HTTPPort   string    `yaml:"http-port" env-default:"9090"`
	SocketPort string    `yaml:"socket-port" env-default:"8080"`
	Heartbeat  Heartbeat `yaml:"heartbeat"`
	Cleanup    Cleanup   `yaml:"cleanup"`
}

type Heartbeat struct {
	Interval            time.Duration `yaml:"interval" env-default:"30s"`
	DisconnectThreshold int           `yaml:"disconnect-threshold" env-default:"2"`
}

type Cleanup struct {
	SweepInterval  time.Duration `yaml:"sweep-interval" env-default:"30s"`
	AbsenceTimeout time.Duration `yaml:"absence-timeout" env-default:"60s"`
	PreserveWindow time.Duration `yaml:"preserve-window" env-default:"1h"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}
