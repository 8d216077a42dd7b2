package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hudhaifi/murattal/internal/config"
	"github.com/hudhaifi/murattal/pkg/cache"
	"github.com/hudhaifi/murattal/pkg/catalog"
	"github.com/hudhaifi/murattal/pkg/cron"
	"github.com/hudhaifi/murattal/pkg/database"
	"github.com/hudhaifi/murattal/pkg/lifecycle"
	"github.com/hudhaifi/murattal/pkg/logging"
	"github.com/hudhaifi/murattal/pkg/metrics"
	"github.com/hudhaifi/murattal/pkg/playback"
	"github.com/hudhaifi/murattal/pkg/position"
	"github.com/hudhaifi/murattal/pkg/queue"
	"github.com/hudhaifi/murattal/pkg/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to create Discord session", logging.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	collector := metrics.NewCollector()

	// Subsystems the container wires together. Factories run in dependency
	// order, so each can rely on the ones before it being started.
	var (
		trackCache *cache.Cache[[]catalog.Track]
		db         *database.Manager
		store      *position.Store
		provider   *catalog.CachedProvider
		refresher  *cron.CatalogRefresher
		trackQueue *queue.Queue
		supervisor *voice.Supervisor
		engine     *playback.Engine
	)

	container := lifecycle.NewContainer(lifecycle.Config{
		InitTimeout: 30 * time.Second,
		StopTimeout: 15 * time.Second,
	}, logger)

	must := func(err error) {
		if err != nil {
			logger.Fatal("failed to register service", logging.Error(err))
		}
	}

	must(container.Register("cache", nil, func() (lifecycle.Service, error) {
		c, err := cache.New[[]catalog.Track](cfg.Cache)
		if err != nil {
			return nil, err
		}
		trackCache = c
		return lifecycle.ServiceFunc{
			StopFunc: func(context.Context) error { c.Close(); return nil },
		}, nil
	}))

	must(container.Register("database", nil, func() (lifecycle.Service, error) {
		m, err := database.NewManager(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		db = m
		return lifecycle.ServiceFunc{
			StartFunc: func(context.Context) error { return m.Connect() },
			StopFunc:  func(context.Context) error { return m.Close() },
		}, nil
	}))

	must(container.Register("position", nil, func() (lifecycle.Service, error) {
		s, err := position.NewStore(cfg.Position.Path, logger)
		if err != nil {
			return nil, err
		}
		store = s
		return lifecycle.ServiceFunc{}, nil
	}))

	must(container.Register("catalog", []string{"cache"}, func() (lifecycle.Service, error) {
		cdn, err := catalog.NewCDNProvider(cfg.Catalog.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		provider = catalog.NewCachedProvider(cdn, trackCache, cfg.Catalog.CacheTTL)

		return lifecycle.ServiceFunc{
			StartFunc: func(ctx context.Context) error {
				// Warm the cache and start the scheduled refresh.
				if err := provider.Refresh(ctx, cfg.Catalog.Reciter); err != nil {
					return err
				}
				refresher = cron.NewCatalogRefresherWithSchedule(func() error {
					return provider.Refresh(context.Background(), cfg.Catalog.Reciter)
				}, cfg.Catalog.RefreshSchedule, logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				if refresher != nil {
					refresher.Stop()
				}
				return nil
			},
		}, nil
	}))

	must(container.Register("queue", []string{"catalog"}, func() (lifecycle.Service, error) {
		trackQueue = queue.New(cfg.Queue)
		return lifecycle.ServiceFunc{
			StartFunc: func(ctx context.Context) error {
				tracks, err := provider.Catalog(ctx, cfg.Catalog.Reciter)
				if err != nil {
					return err
				}
				trackQueue.LoadCatalog(tracks)
				logger.Info("catalog loaded",
					logging.String("reciter", cfg.Catalog.Reciter),
					logging.Int("tracks", len(tracks)))
				return nil
			},
		}, nil
	}))

	must(container.Register("voice", nil, func() (lifecycle.Service, error) {
		dialer, err := voice.NewDiscordDialer(dg, cfg.Discord.GuildID, cfg.Discord.ChannelID, logger)
		if err != nil {
			return nil, err
		}
		supervisor, err = voice.NewSupervisor(cfg.Voice, dialer, logger)
		if err != nil {
			return nil, err
		}
		return lifecycle.ServiceFunc{
			StopFunc: func(context.Context) error { supervisor.Release(); return nil },
		}, nil
	}))

	must(container.Register("playback", []string{"queue", "voice", "position", "database"}, func() (lifecycle.Service, error) {
		var err error
		engine, err = playback.New(playback.Config{
			Reciter:           cfg.Catalog.Reciter,
			FFmpegPath:        cfg.Playback.FFmpegPath,
			Bitrate:           cfg.Playback.Bitrate,
			FrameDuration:     cfg.Playback.FrameDuration,
			SendTimeout:       cfg.Playback.SendTimeout,
			ResolutionRetries: cfg.Playback.ResolutionRetries,
			SaveInterval:      cfg.Position.SaveInterval,
		}, playback.Deps{
			Queue:      trackQueue,
			Supervisor: supervisor,
			Positions:  store,
			Resolver:   catalog.NewResolver(logger),
			Provider:   provider,
			History:    db.History(),
			Metrics:    collector,
			CacheStats: trackCache.Stats,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return lifecycle.ServiceFunc{
			StartFunc: func(ctx context.Context) error { return engine.Begin(ctx, true) },
			StopFunc:  func(context.Context) error { return engine.Close() },
		}, nil
	}))

	if err := dg.Open(); err != nil {
		logger.Fatal("failed to open Discord session", logging.Error(err))
	}

	if err := container.StartAll(context.Background()); err != nil {
		dg.Close()
		logger.Fatal("startup failed", logging.Error(err))
	}

	logger.Info("bot is running, press CTRL-C to exit")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("shutting down")
	if err := container.StopAll(); err != nil {
		logger.Error("shutdown finished with errors", logging.Error(err))
	}
	dg.Close()
}
