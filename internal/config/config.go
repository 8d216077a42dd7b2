package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hudhaifi/murattal/pkg/cache"
	"github.com/hudhaifi/murattal/pkg/database"
	"github.com/hudhaifi/murattal/pkg/queue"
	"github.com/hudhaifi/murattal/pkg/voice"
)

// Config contains the full bot configuration.
type Config struct {
	Discord  DiscordConfig
	Catalog  CatalogConfig
	Cache    cache.Config
	Queue    queue.Config
	Voice    voice.Config
	Playback PlaybackConfig
	Position PositionConfig
	Database database.Config
	Logging  LoggingConfig
}

// DiscordConfig identifies the gateway session and the target voice channel.
type DiscordConfig struct {
	Token     string
	GuildID   string
	ChannelID string
}

// CatalogConfig locates the recitation catalog.
type CatalogConfig struct {
	BaseURL         string
	Reciter         string
	CacheTTL        time.Duration
	RefreshSchedule string
}

// PlaybackConfig tunes the audio path.
type PlaybackConfig struct {
	FFmpegPath        string
	Bitrate           int
	FrameDuration     time.Duration
	SendTimeout       time.Duration
	ResolutionRetries int
}

// PositionConfig controls playback position persistence.
type PositionConfig struct {
	Path         string
	SaveInterval time.Duration
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Default returns a configuration with sensible defaults. The Discord
// token has no default and must come from the environment.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:         "https://download.quranicaudio.com/quran",
			Reciter:         "mishari_al_afasy",
			CacheTTL:        6 * time.Hour,
			RefreshSchedule: "0 0 */6 * * *",
		},
		Cache: cache.Config{
			Capacity:      256,
			DefaultTTL:    6 * time.Hour,
			SweepInterval: time.Minute,
		},
		Queue: queue.Config{
			WrapSequential:        true,
			ReshuffleOnModeChange: false,
			ShuffleSeed:           0,
		},
		Voice: voice.Config{
			ConnectTimeout:     20 * time.Second,
			BackoffBase:        time.Second,
			BackoffCap:         time.Minute,
			JitterFraction:     0.2,
			MaxAttempts:        0,
			StabilityThreshold: 2 * time.Minute,
		},
		Playback: PlaybackConfig{
			FFmpegPath:        "ffmpeg",
			Bitrate:           128000,
			FrameDuration:     20 * time.Millisecond,
			SendTimeout:       time.Second,
			ResolutionRetries: 3,
		},
		Position: PositionConfig{
			Path:         "data/position.json",
			SaveInterval: 10 * time.Second,
		},
		Database: database.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads a .env file if present, applies environment overrides on top
// of the defaults, and validates the result.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments pass env vars directly.
	_ = godotenv.Load()

	cfg := Default()
	cfg.LoadFromEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvironment applies MURATTAL_* environment overrides.
func (c *Config) LoadFromEnvironment() {
	// Discord
	if val := os.Getenv("DISCORD_TOKEN"); val != "" {
		c.Discord.Token = val
	}
	if val := os.Getenv("MURATTAL_GUILD_ID"); val != "" {
		c.Discord.GuildID = val
	}
	if val := os.Getenv("MURATTAL_CHANNEL_ID"); val != "" {
		c.Discord.ChannelID = val
	}

	// Catalog
	if val := os.Getenv("MURATTAL_CATALOG_BASE_URL"); val != "" {
		c.Catalog.BaseURL = val
	}
	if val := os.Getenv("MURATTAL_RECITER"); val != "" {
		c.Catalog.Reciter = val
	}
	if val := os.Getenv("MURATTAL_CATALOG_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			c.Catalog.CacheTTL = ttl
			c.Cache.DefaultTTL = ttl
		}
	}
	if val := os.Getenv("MURATTAL_REFRESH_SCHEDULE"); val != "" {
		c.Catalog.RefreshSchedule = val
	}

	// Queue
	if val := os.Getenv("MURATTAL_QUEUE_WRAP"); val != "" {
		c.Queue.WrapSequential = val == "true" || val == "1"
	}
	if val := os.Getenv("MURATTAL_QUEUE_RESHUFFLE"); val != "" {
		c.Queue.ReshuffleOnModeChange = val == "true" || val == "1"
	}
	if val := os.Getenv("MURATTAL_SHUFFLE_SEED"); val != "" {
		if seed, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Queue.ShuffleSeed = seed
		}
	}

	// Voice
	if val := os.Getenv("MURATTAL_CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Voice.ConnectTimeout = d
		}
	}
	if val := os.Getenv("MURATTAL_BACKOFF_BASE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Voice.BackoffBase = d
		}
	}
	if val := os.Getenv("MURATTAL_BACKOFF_CAP"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Voice.BackoffCap = d
		}
	}
	if val := os.Getenv("MURATTAL_MAX_RECONNECT_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Voice.MaxAttempts = n
		}
	}

	// Playback
	if val := os.Getenv("MURATTAL_FFMPEG_PATH"); val != "" {
		c.Playback.FFmpegPath = val
	}
	if val := os.Getenv("MURATTAL_OPUS_BITRATE"); val != "" {
		if bitrate, err := strconv.Atoi(val); err == nil {
			c.Playback.Bitrate = bitrate
		}
	}
	if val := os.Getenv("MURATTAL_SEND_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Playback.SendTimeout = d
		}
	}

	// Position
	if val := os.Getenv("MURATTAL_POSITION_PATH"); val != "" {
		c.Position.Path = val
	}
	if val := os.Getenv("MURATTAL_SAVE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Position.SaveInterval = d
		}
	}

	// Database
	if val := os.Getenv("MURATTAL_DATABASE_PATH"); val != "" {
		c.Database.Path = val
	}

	// Logging
	if val := os.Getenv("MURATTAL_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("MURATTAL_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("MURATTAL_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
}

// Validate checks the configuration and returns any errors.
func (c *Config) Validate() error {
	var errors []string

	if c.Discord.Token == "" {
		errors = append(errors, "discord token must be set (DISCORD_TOKEN)")
	}
	if c.Discord.GuildID == "" {
		errors = append(errors, "guild id must be set (MURATTAL_GUILD_ID)")
	}
	if c.Discord.ChannelID == "" {
		errors = append(errors, "channel id must be set (MURATTAL_CHANNEL_ID)")
	}

	if c.Catalog.BaseURL == "" {
		errors = append(errors, "catalog base_url must be set")
	}
	if c.Catalog.Reciter == "" {
		errors = append(errors, "catalog reciter must be set")
	}

	if err := c.Cache.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("cache: %v", err))
	}
	if err := c.Voice.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("voice: %v", err))
	}
	if err := c.Database.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("database: %v", err))
	}

	if c.Playback.Bitrate <= 0 {
		errors = append(errors, "playback bitrate must be > 0")
	}
	if c.Playback.FrameDuration <= 0 {
		errors = append(errors, "playback frame_duration must be > 0")
	}
	if c.Playback.SendTimeout <= 0 {
		errors = append(errors, "playback send_timeout must be > 0")
	}
	if c.Playback.ResolutionRetries < 0 {
		errors = append(errors, "playback resolution_retries must be >= 0")
	}

	if c.Position.Path == "" {
		errors = append(errors, "position path must be set")
	}
	if c.Position.SaveInterval <= 0 {
		errors = append(errors, "position save_interval must be > 0")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
