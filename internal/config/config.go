package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Prefix namespaces every environment variable, e.g. CART_MONGO_URI.
const Prefix = "CART"

type Config struct {
	conf.Version
	Env string `conf:"default:development"`
	Log struct {
		Level     string `conf:"default:info"`
		AddSource bool   `conf:"default:false"`
	}
	HTTP struct {
		Address         string        `conf:"default:0.0.0.0:8080"`
		ReadTimeout     time.Duration `conf:"default:10s"`
		WriteTimeout    time.Duration `conf:"default:10s"`
		IdleTimeout     time.Duration `conf:"default:60s"`
		RequestTimeout  time.Duration `conf:"default:30s"`
		ShutdownTimeout time.Duration `conf:"default:10s"`
		MaxBodyBytes    int64         `conf:"default:1048576"`
	}
	GRPC struct {
		Address        string        `conf:"default:0.0.0.0:50052"`
		HealthInterval time.Duration `conf:"default:10s"`
	}
	Mongo struct {
		// Disabled keeps carts in process memory.
		Disabled bool   `conf:"default:false"`
		URI      string `conf:"default:mongodb://localhost:27017,mask"`
		Database string `conf:"default:cartdb"`
	}
	Redis struct {
		Disabled bool          `conf:"default:false"`
		Addr     string        `conf:"default:localhost:6379"`
		Password string        `conf:"mask"`
		DB       int           `conf:"default:0"`
		TTL      time.Duration `conf:"default:15m"`
	}
	Catalog struct {
		Driver  string `conf:"default:sqlite,help:sqlite or postgres"`
		DSN     string `conf:"default:file:catalog.db,mask"`
		Migrate bool   `conf:"default:true"`
	}
	Kafka struct {
		Enabled bool     `conf:"default:false"`
		Brokers []string `conf:"default:localhost:9092"`
		Topic   string   `conf:"default:checkout-outbox"`
		GroupID string   `conf:"default:cart-engine-consumer"`
	}
	Breaker struct {
		Timeout             time.Duration `conf:"default:10s"`
		ConsecutiveFailures uint32        `conf:"default:5"`
	}
	Auth struct {
		Secret string `conf:"required,mask"`
	}
	RateLimit struct {
		RPS    float64       `conf:"default:10"`
		Burst  int           `conf:"default:20"`
		Expiry time.Duration `conf:"default:5m"`
	}
}

// Load reads envFile (when it exists) into the environment and then parses
// flags and CART_* variables. Variables already set win over the file. The
// returned help text is non-empty when --help or --version was requested;
// err is then conf.ErrHelpWanted.
func Load(envFile string) (Config, string, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, "", fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var cfg Config
	cfg.Version = conf.Version{Build: "dev", Desc: "shopping cart engine"}

	help, err := conf.Parse(Prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return Config{}, help, err
		}
		return Config{}, "", fmt.Errorf("parsing config: %w", err)
	}
	return cfg, "", nil
}

// String renders cfg with masked secrets, for startup logs.
func String(cfg Config) string {
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Sprintf("config unavailable: %v", err)
	}
	return out
}
