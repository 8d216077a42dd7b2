package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Discord.Token = "token"
	cfg.Discord.GuildID = "guild"
	cfg.Discord.ChannelID = "channel"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Discord.Token = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discord token")
	})

	t.Run("bad playback", func(t *testing.T) {
		cfg := validConfig()
		cfg.Playback.Bitrate = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad voice", func(t *testing.T) {
		cfg := validConfig()
		cfg.Voice.BackoffBase = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "voice:")
	})
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("MURATTAL_RECITER", "husary")
	t.Setenv("MURATTAL_SAVE_INTERVAL", "30s")
	t.Setenv("MURATTAL_SHUFFLE_SEED", "42")
	t.Setenv("MURATTAL_QUEUE_WRAP", "false")

	cfg := Default()
	cfg.LoadFromEnvironment()

	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "husary", cfg.Catalog.Reciter)
	assert.Equal(t, 30*time.Second, cfg.Position.SaveInterval)
	assert.Equal(t, int64(42), cfg.Queue.ShuffleSeed)
	assert.False(t, cfg.Queue.WrapSequential)
}

func TestLoadFromEnvironment_IgnoresMalformed(t *testing.T) {
	t.Setenv("MURATTAL_SAVE_INTERVAL", "not-a-duration")
	t.Setenv("MURATTAL_OPUS_BITRATE", "not-a-number")

	cfg := Default()
	cfg.LoadFromEnvironment()

	assert.Equal(t, 10*time.Second, cfg.Position.SaveInterval)
	assert.Equal(t, 128000, cfg.Playback.Bitrate)
}
