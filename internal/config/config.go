package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration, read from GAMEROOM_* variables.
type Config struct {
	Addr        string `env:"GAMEROOM_ADDR"         envDefault:":8080"`
	DatabaseURL string `env:"GAMEROOM_DATABASE_URL"` // empty keeps the journal in memory

	LogLevel string `env:"GAMEROOM_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"GAMEROOM_LOG_DEV"   envDefault:"false"`

	RoomInboxSize    int           `env:"GAMEROOM_ROOM_INBOX_SIZE"    envDefault:"64"`
	ClientOutboxSize int           `env:"GAMEROOM_CLIENT_OUTBOX_SIZE" envDefault:"16"`
	WriteTimeout     time.Duration `env:"GAMEROOM_WRITE_TIMEOUT"      envDefault:"3s"`
	ReadIdleTimeout  time.Duration `env:"GAMEROOM_READ_IDLE_TIMEOUT"  envDefault:"0s"`
	ShutdownTimeout  time.Duration `env:"GAMEROOM_SHUTDOWN_TIMEOUT"   envDefault:"10s"`

	// EndedRoomRetention is how long an ended room stays live before it is
	// evicted. Evicted rooms are restored from the journal on demand.
	EndedRoomRetention time.Duration `env:"GAMEROOM_ENDED_ROOM_RETENTION" envDefault:"10m"`

	NarrativeMinConfidence float64 `env:"GAMEROOM_NARRATIVE_MIN_CONFIDENCE" envDefault:"0.3"`
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RoomInboxSize <= 0 || cfg.ClientOutboxSize <= 0 {
		return Config{}, fmt.Errorf("parse env: queue sizes must be positive")
	}
	if cfg.EndedRoomRetention <= 0 {
		return Config{}, fmt.Errorf("parse env: ended room retention must be positive")
	}
	if cfg.NarrativeMinConfidence < 0 || cfg.NarrativeMinConfidence > 1 {
		return Config{}, fmt.Errorf("parse env: narrative min confidence %v out of [0,1]", cfg.NarrativeMinConfidence)
	}
	return cfg, nil
}
