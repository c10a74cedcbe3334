package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/table-reservation/internal/broadcast"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/presence"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/reservation"
	"github.com/iliyamo/table-reservation/internal/router"
	queue_publisher "github.com/iliyamo/table-reservation/internal/service"
	"github.com/iliyamo/table-reservation/internal/ws"
)

// runServe wires the stores, engine, broadcaster and HTTP surface and
// serves until SIGINT or SIGTERM.
func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	settings, err := config.LoadGrid(cfg.GridConfigPath)
	if err != nil {
		return err
	}
	db, dialect, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := prepare(ctx, db, dialect, settings); err != nil {
		return err
	}

	cells := repository.NewCellRepo(db, dialect)
	ledgers := repository.NewLedgerRepo(db, dialect)
	users := repository.NewUserRepo(db)

	reg := presence.New()
	coord := broadcast.New(db, cells, ledgers, reg)
	go coord.Run(ctx)

	notifiers := broadcast.Notifiers{coord}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer rdb.Close()
		if cfg.RelayChannel != "" {
			relay := broadcast.NewRedisRelay(rdb, cfg.RelayChannel, coord.Trigger)
			notifiers = append(notifiers, relay)
			go relay.Listen(ctx)
			log.Printf("relay: instance %s on channel %s", relay.Instance(), cfg.RelayChannel)
		}
	}

	if cfg.RabbitURL != "" {
		notifiers = append(notifiers, queue_publisher.New(cfg.RabbitURL))
		go func() {
			if err := queue.StartPurchaseConsumer(ctx, cfg.RabbitURL, "logs"); err != nil && ctx.Err() == nil {
				log.Printf("purchase-consumer: stopped: %v", err)
			}
		}()
	}

	policy := settings.Policy()
	eng := reservation.New(db, cells, ledgers, reservation.Options{
		Policy:    &policy,
		Notifier:  notifiers,
		TxTimeout: cfg.TxTimeout,
	})

	e := router.New(router.Deps{
		Cfg:       cfg,
		Grid:      settings,
		DB:        db,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Auth:      handler.NewAuthHandler(cfg, db, users, ledgers, eng),
		Tables:    handler.NewTablesHandler(eng, coord),
		WS: &ws.Handler{
			Secret:    cfg.JWTSecret,
			Registry:  reg,
			Engine:    eng,
			Broadcast: coord,
			Origins:   cfg.OriginAllowlist,
		},
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, db=%s)", addr, cfg.Env, dialect) // Print startup info
	errc := make(chan error, 1)
	go func() { errc <- e.Start(addr) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	reg.CloseAll("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
