// Package game parses game service flags and wires the runtime: stores,
// broadcasters, the turn coordinator, and the background reaper.
package game

import (
	"context"
	"flag"
	"log"

	"github.com/dungeontalk/dungeontalk/internal/game/broadcast"
	"github.com/dungeontalk/dungeontalk/internal/game/coordinator"
	"github.com/dungeontalk/dungeontalk/internal/game/domain"
	"github.com/dungeontalk/dungeontalk/internal/game/oracle"
	"github.com/dungeontalk/dungeontalk/internal/game/orchestrator"
	"github.com/dungeontalk/dungeontalk/internal/game/reaper"
	"github.com/dungeontalk/dungeontalk/internal/game/rooms"
	"github.com/dungeontalk/dungeontalk/internal/game/sequencer"
	"github.com/dungeontalk/dungeontalk/internal/game/storage"
	"github.com/dungeontalk/dungeontalk/internal/game/storage/memory"
	redisstore "github.com/dungeontalk/dungeontalk/internal/game/storage/redis"
	"github.com/dungeontalk/dungeontalk/internal/game/storage/sqlite"
	"github.com/dungeontalk/dungeontalk/internal/platform/config"
	"github.com/dungeontalk/dungeontalk/internal/platform/otel"
)

const serviceName = "dungeontalk-game"

// App bundles the wired game services for embedding in a transport layer.
type App struct {
	Coordinator  *coordinator.Coordinator
	Sequencer    *sequencer.Sequencer
	Orchestrator *orchestrator.Orchestrator
	Rooms        *rooms.Service
	Hub          *broadcast.Hub
	Oracle       oracle.Oracle
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis URL for the session store (empty = in-memory)")
	fs.StringVar(&cfg.OracleURL, "oracle", cfg.OracleURL, "Oracle base URL")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Run wires the game runtime and blocks until the context is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	shutdown, err := otel.Setup(ctx, serviceName, cfg.OtelEndpoint, cfg.OtelEnabled)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("trace shutdown failed err=%v", err)
		}
	}()

	store, err := sqlite.OpenWithOrderBounds(cfg.DBPath, orderBounds(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	var kv storage.KeyValue
	var bcast broadcast.Broadcaster
	hub := broadcast.NewHub()
	if cfg.RedisURL != "" {
		rkv, err := redisstore.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rkv.Close()
		kv = rkv
		bcast = broadcast.Fanout{hub, broadcast.NewRedisPublisher(rkv.Client())}
		log.Printf("session store connected backend=redis")
	} else {
		kv = memory.NewKeyValue()
		bcast = hub
		log.Printf("session store running backend=memory")
	}

	app, err := Build(cfg, store, kv, hub, bcast)
	if err != nil {
		return err
	}

	if !app.Oracle.Health(ctx) {
		log.Printf("oracle unreachable url=%s", cfg.OracleURL)
	}

	sweeper := reaper.New(app.Coordinator, cfg.ReapInterval, cfg.ReapAfter)
	go sweeper.Run(ctx)

	log.Printf("game service ready db=%s oracle=%s", cfg.DBPath, cfg.OracleURL)
	<-ctx.Done()
	return nil
}

// orderBounds maps the configured sentinel orders into the shared layout.
func orderBounds(cfg config.Config) domain.OrderBounds {
	return domain.OrderBounds{
		TurnStart: cfg.TurnStartOrder,
		Error:     cfg.ErrorOrder,
		TurnEnd:   cfg.TurnEndOrder,
	}
}

// Build assembles the game services over the given stores.
func Build(cfg config.Config, store *sqlite.Store, kv storage.KeyValue, hub *broadcast.Hub, bcast broadcast.Broadcaster) (*App, error) {
	coord := coordinator.New(coordinator.Stores{Rooms: store, KV: kv}, cfg.SessionTTL, cfg.LockTTL)
	seq := sequencer.New(sequencer.Stores{Rooms: store, Messages: store}, cfg.ContextWindowTurns, orderBounds(cfg))
	oracleClient := oracle.NewHTTPClient(cfg.OracleURL, cfg.OracleTimeout)
	orch := orchestrator.New(coord, seq, store, oracleClient, bcast)
	roomSvc := rooms.New(store, seq, bcast, coord)

	return &App{
		Coordinator:  coord,
		Sequencer:    seq,
		Orchestrator: orch,
		Rooms:        roomSvc,
		Hub:          hub,
		Oracle:       oracleClient,
	}, nil
}
