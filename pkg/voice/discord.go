package voice

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/logging"
)

const (
	joinRetries    = 3
	readyPollEvery = 100 * time.Millisecond
	opusSendWait   = 5 * time.Second
)

// DiscordDialer joins a fixed guild voice channel and wraps the resulting
// connection as a Transport. Session authentication is owned by discordgo.
type DiscordDialer struct {
	session   *discordgo.Session
	guildID   string
	channelID string
	logger    logging.Logger
}

// NewDiscordDialer creates a dialer for the given voice target.
func NewDiscordDialer(session *discordgo.Session, guildID, channelID string, logger logging.Logger) (*DiscordDialer, error) {
	if session == nil {
		return nil, errors.New("voice: discord session cannot be nil")
	}
	if guildID == "" || channelID == "" {
		return nil, errors.New("voice: guild and channel IDs cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DiscordDialer{
		session:   session,
		guildID:   guildID,
		channelID: channelID,
		logger:    logger,
	}, nil
}

// Dial joins the voice channel with bounded retries and waits until the
// connection is ready to carry frames.
func (d *DiscordDialer) Dial(ctx context.Context) (Transport, error) {
	var vc *discordgo.VoiceConnection
	var err error

	for i := 0; i < joinRetries; i++ {
		vc, err = d.session.ChannelVoiceJoin(d.guildID, d.channelID, false, true)
		if err == nil {
			break
		}
		d.logger.Warn("Voice join attempt failed",
			logging.Int("attempt", i+1),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "voice: join failed after %d attempts", joinRetries)
	}

	ticker := time.NewTicker(readyPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			vc.Disconnect()
			return nil, errors.Wrap(ctx.Err(), "voice: waiting for connection readiness")
		case <-ticker.C:
			if vc.Ready {
				vc.Speaking(true)
				d.logger.Info("Voice connection ready",
					logging.String("guild", d.guildID),
					logging.String("channel", d.channelID),
				)
				return &discordTransport{vc: vc}, nil
			}
		}
	}
}

// discordTransport adapts a discordgo voice connection to the Transport
// interface. discordgo paces frame delivery through the OpusSend channel.
type discordTransport struct {
	vc *discordgo.VoiceConnection
}

func (t *discordTransport) WriteOpus(frame []byte) error {
	if !t.vc.Ready {
		return errors.New("voice: connection not ready")
	}
	select {
	case t.vc.OpusSend <- frame:
		return nil
	case <-time.After(opusSendWait):
		return errors.New("voice: opus send blocked")
	}
}

func (t *discordTransport) Ready() bool {
	return t.vc.Ready
}

func (t *discordTransport) Close() error {
	t.vc.Speaking(false)
	return t.vc.Disconnect()
}
