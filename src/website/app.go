package website

import (
	"context"
	"time"

	"git.handmade.network/hmn/discuss/src/auth"
	"git.handmade.network/hmn/discuss/src/categories"
	"git.handmade.network/hmn/discuss/src/config"
	"git.handmade.network/hmn/discuss/src/db"
	"git.handmade.network/hmn/discuss/src/discuss"
	"git.handmade.network/hmn/discuss/src/events"
	"git.handmade.network/hmn/discuss/src/identity"
	"git.handmade.network/hmn/discuss/src/jobs"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/replycache"
	"git.handmade.network/hmn/discuss/src/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Everything a running discuss process needs, wired from config.Config.
type App struct {
	Conn    *pgxpool.Pool
	Store   *store.Postgres
	Service *discuss.Service
	Users   identity.Postgres

	Categories categories.Postgres

	bus   *events.Bus // nil when NATS is not configured
	redis *redis.Client
}

func NewApp(ctx context.Context) (*App, error) {
	conn, err := db.NewConnPool(ctx)
	if err != nil {
		return nil, err
	}

	cache, err := replycache.New(config.Config.Cache.MaxTopics)
	if err != nil {
		conn.Close()
		return nil, err
	}

	app := &App{
		Conn:       conn,
		Store:      store.NewPostgres(conn),
		Users:      identity.Postgres{Conn: conn},
		Categories: categories.Postgres{Conn: conn},
	}

	var authors discuss.Identity = app.Users
	if cfg := config.Config.Redis; cfg.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		})
		authors = &identity.RedisCache{
			Client: app.redis,
			Next:   app.Users,
			TTL:    cfg.AuthorTTL,
			Prefix: cfg.KeyPrefix,
		}
	} else {
		logging.Info().Msg("No Redis address configured; author lookups go straight to Postgres")
	}

	opts := discuss.Options{
		Store:       app.Store,
		Cache:       cache,
		Authorizer:  auth.NewRoleAuthorizer(auth.PostgresRoles{Conn: conn}),
		Categories:  app.Categories,
		Identity:    authors,
		LockTimeout: config.Config.Locks.AcquireTimeout,
	}
	if config.Config.NATS.URL != "" {
		app.bus = events.NewBus(config.Config.NATS.Subject)
		opts.Publisher = app.bus
	} else {
		logging.Warn().Msg("No NATS URL configured; reply trees will only be invalidated in this process")
	}
	app.Service = discuss.New(opts)

	return app, nil
}

// Starts the background jobs the service depends on.
func (app *App) StartJobs() jobs.Jobs {
	result := jobs.Jobs{
		app.Service.StartReconciler(config.Config.Votes.ReconcileInterval),
	}
	if bus := app.StartBus(); bus != nil {
		result = append(result, bus)
	}
	return result
}

// Connects to the invalidation bus, if one is configured. Returns nil otherwise.
func (app *App) StartBus() *jobs.Job {
	if app.bus == nil {
		return nil
	}
	return app.bus.Run(events.DialNATS(config.Config.NATS), invalidationHandler(app.Service))
}

// Blocks until the bus is connected or ctx is done. Without a bus there is
// nothing to wait for.
func (app *App) WaitForBus(ctx context.Context) error {
	if app.bus == nil {
		return nil
	}
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !app.bus.Connected() {
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (app *App) Close() {
	if app.redis != nil {
		app.redis.Close()
	}
	app.Conn.Close()
}

func invalidationHandler(svc *discuss.Service) func(inv events.Invalidation) {
	return func(inv events.Invalidation) {
		if inv.Kind == events.KindResync {
			svc.InvalidateAll()
			return
		}
		svc.InvalidateTopic(inv.TopicID)
	}
}
