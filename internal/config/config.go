package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Run modes.
const (
	ModeWeb     = "web"
	ModeConsole = "console"
)

type Config struct {
	Mode      string        `yaml:"mode" env:"MODE" env-default:"web"`
	HTTPAddr  string        `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	LogLevel  string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string        `yaml:"log-format" env:"LOG_FORMAT" env-default:"json"`
	Heartbeat time.Duration `yaml:"heartbeat" env:"SSE_HEARTBEAT" env-default:"15s"`
	GameTTL   time.Duration `yaml:"game-ttl" env:"GAME_TTL" env-default:"1h"`
}

var ErrInvalidMode = errors.New("invalid mode")

// Load reads an optional .env file, then the yaml file at path if it exists,
// then environment variables. An empty or missing path skips the file; any
// other error accessing it is returned.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{}
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err = cleanenv.ReadConfig(path, conf); err != nil {
				return nil, fmt.Errorf("unable to load config file: %w", err)
			}
			return conf, conf.validate()
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("unable to access config file: %w", err)
		}
	}
	if err := cleanenv.ReadEnv(conf); err != nil {
		return nil, fmt.Errorf("unable to read environment: %w", err)
	}
	return conf, conf.validate()
}

func (that *Config) validate() error {
	switch that.Mode {
	case ModeWeb, ModeConsole:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, that.Mode)
	}
	if that.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive, got %s", that.Heartbeat)
	}
	return nil
}
