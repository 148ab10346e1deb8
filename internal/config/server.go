package config

import "github.com/ilyakaznacheev/cleanenv"

// ServerConfig configures the local backend server. It is read from the
// environment only
type ServerConfig struct {
	Addr        string `env:"PROMANAGE_SERVER_ADDR" env-default:":54321"`
	DatabaseURL string `env:"PROMANAGE_DATABASE_URL" env-default:"promanage.db"`
	JWTSecret   string `env:"PROMANAGE_JWT_SECRET" env-required:"true"`
	AnonKey     string `env:"PROMANAGE_ANON_KEY" env-required:"true"`
	DevMode     bool   `env:"PROMANAGE_DEV_MODE" env-default:"false"`
	LogLevel    string `env:"PROMANAGE_LOG_LEVEL" env-default:"INFO"`
}

// ReadServer reads ServerConfig from the environment
func ReadServer() (*ServerConfig, error) {
	cfg := new(ServerConfig)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
