package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/likelion/yourside/internal/platform/auth"
	"github.com/likelion/yourside/internal/platform/config"
	"github.com/likelion/yourside/internal/platform/db"
	"github.com/likelion/yourside/internal/platform/events"
	"github.com/likelion/yourside/internal/platform/httpserver"
	"github.com/likelion/yourside/internal/platform/logging"
	"github.com/likelion/yourside/internal/platform/natsconn"
	"github.com/likelion/yourside/internal/platform/ratelimit"
	"github.com/likelion/yourside/internal/platform/run"
	"github.com/likelion/yourside/services/community/internal/coordinator"
	"github.com/likelion/yourside/services/community/internal/grpcapi"
	"github.com/likelion/yourside/services/community/internal/handlers"
	"github.com/likelion/yourside/services/community/internal/idempotency"
	"github.com/likelion/yourside/services/community/internal/store"
	"github.com/likelion/yourside/services/community/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, !cfg.IsProd())
	if err != nil {
		panic(err)
	}
	log = log.With(zap.String("service", cfg.ServiceName))

	st, pool := initStore(log, cfg)
	pub, js, closeNATS := initEvents(log, cfg)

	idem, err := idempotency.NewStore(cfg.RedisURL, pool, cfg.IdempotencyTTL, cfg.IsProd())
	if err != nil {
		fatal(log, "idempotency store", err)
	}

	opts := handlers.RouteOptions{
		Idempotency: idem,
		LikeLimiter: ratelimit.New(cfg.LikeRate.PerSecond, cfg.LikeRate.Burst).Middleware,
		Logger:      log,
	}
	switch {
	case cfg.JWTSecret != "":
		opts.Verifier = &auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	case cfg.IsProd():
		fatal(log, "JWT_SECRET is required in production", nil)
	default:
		log.Warn("JWT_SECRET not set, user ids are taken from request bodies (development only)")
	}

	svc := coordinator.New(st, pub, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.Ping(ctx)
		},
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})
	handlers.Register(r, svc, opts)

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		fatal(log, "grpc listen", err)
	}
	grpcSrv := grpcapi.New(log, st.Ping)

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error { return srv.Start(log) })
		g.Go(func() error { return grpcSrv.Serve(lis) })
		g.Go(func() error {
			grpcSrv.WatchReadiness(gctx, 5*time.Second)
			return nil
		})
		if js != nil {
			audit := &worker.LikeAuditConsumer{Store: st, Log: log.With(zap.String("component", "like_audit"))}
			g.Go(func() error {
				// audit failures are logged, never fatal
				if err := audit.Run(gctx, js); err != nil {
					log.Error("like audit consumer stopped", zap.Error(err))
				}
				return nil
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.Shutdown(shutdownTimeout)
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		return g.Wait()
	})

	closeNATS()
	if pool != nil {
		pool.Close()
	}
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// initStore selects the comment store backend.
// In production (APP_ENV=production) it requires a working Postgres connection
// and terminates the process otherwise.
func initStore(log *zap.Logger, cfg config.AppConfig) (store.Store, *pgxpool.Pool) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store with demo data (development only)")
		return seedDemo(store.NewInMemoryStore()), nil
	}

	pool, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProd() {
			fatal(log, "postgres is required in production but unavailable", err)
		}
		log.Warn("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return seedDemo(store.NewInMemoryStore()), nil
	}

	log.Info("comment store: postgres")
	return store.NewPostgresStore(pool), pool
}

// seedDemo registers a couple of users and one posting so the in-memory
// store is usable without the account and posting services.
func seedDemo(st *store.InMemoryStore) *store.InMemoryStore {
	st.PutUser(store.User{ID: 1, Nickname: "lion"})
	st.PutUser(store.User{ID: 2, Nickname: "tiger"})
	st.PutPosting(1)
	return st
}

// initEvents connects to NATS JetStream. NATS is optional: without it events
// are dropped and the like audit does not run.
func initEvents(log *zap.Logger, cfg config.AppConfig) (*events.Publisher, nats.JetStreamContext, func()) {
	noop := func() {}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
		return events.New(nil, log), nil, noop
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		nc.Close()
		return events.New(nil, log), nil, noop
	}
	if err := events.EnsureStream(js); err != nil {
		log.Warn("ensure stream failed, like audit disabled", zap.String("stream", events.StreamName), zap.Error(err))
		return events.New(js, log), nil, func() { _ = nc.Drain() }
	}
	return events.New(js, log), js, func() { _ = nc.Drain() }
}

func fatal(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	_ = log.Sync()
	run.Exit(1)
}
