package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env string `env:"PORTUNUS_ENV" envDefault:"dev"` // "dev" | "prod"

	// Unit and sensor
	UnitCode     string        `env:"PORTUNUS_UNIT_CODE" envDefault:"DEFAULT" validate:"required"`
	UnitName     string        `env:"PORTUNUS_UNIT_NAME" envDefault:"Default Unit"`
	SensorDevice string        `env:"SENSOR_DEVICE" envDefault:"R307" validate:"required"`
	SensorPort   string        `env:"SENSOR_PORT" envDefault:"/dev/ttyUSB0"`
	SensorBaud   int           `env:"SENSOR_BAUDRATE" envDefault:"57600" validate:"oneof=9600 19200 38400 57600 115200"`
	PollInterval time.Duration `env:"PORTUNUS_POLL_INTERVAL" envDefault:"100ms" validate:"gt=0"`

	// Storage
	DBDriver    string `env:"PORTUNUS_DB_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite postgres memory"`
	DBPath      string `env:"PORTUNUS_DB_PATH" envDefault:"./data/portunus.db"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=DBDriver postgres"`

	// Template encryption. Never logged.
	EncryptionKey  string `env:"PORTUNUS_ENCRYPTION_KEY" validate:"required,min=12"`
	EncryptionSalt string `env:"PORTUNUS_ENCRYPTION_SALT" validate:"required,min=8"`
	KDFIterations  int    `env:"PORTUNUS_KDF_ITERATIONS" envDefault:"100000" validate:"gte=100000"`

	// Matching
	MatchStrategy  string  `env:"PORTUNUS_MATCH_STRATEGY" envDefault:"exact" validate:"oneof=exact similarity"`
	MatchThreshold float64 `env:"PORTUNUS_MATCH_THRESHOLD" envDefault:"0.85" validate:"gt=0,lte=1"`

	// Candidate cache
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0" validate:"gte=0"`
	CacheTTL      time.Duration `env:"PORTUNUS_CACHE_TTL" envDefault:"30s" validate:"gte=0"`

	// Operator surfaces
	HTTPAddr string `env:"PORTUNUS_HTTP_ADDR"`
	GRPCAddr string `env:"PORTUNUS_GRPC_ADDR"`

	// Gate
	GatePin      int           `env:"GATE_GPIO_PIN" envDefault:"0" validate:"gte=0"`
	GateOpenTime time.Duration `env:"GATE_OPEN_TIME" envDefault:"5s" validate:"gt=0"`

	// Heartbeat retention
	HeartbeatRetentionDays int `env:"PORTUNUS_HEARTBEAT_RETENTION_DAYS" envDefault:"30" validate:"gte=0"` // 0 = keep forever
	PruneIntervalHours     int `env:"PORTUNUS_PRUNE_INTERVAL_HOURS" envDefault:"6" validate:"gte=0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile   string `env:"LOG_FILE"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// Load reads dotenv files (default ".env"; missing files are ignored),
// then the environment, then validates. Values already in the
// environment win over the files.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.normalize()

	if err := validateConfig(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.UnitCode = strings.TrimSpace(c.UnitCode)
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.MatchStrategy = strings.ToLower(strings.TrimSpace(c.MatchStrategy))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

var validateConfig = func() func(Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their variable names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return func(c Config) error {
		err := v.Struct(c)
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			// Field values are left out so secrets never reach a log line.
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
}()
