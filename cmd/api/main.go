// Command api runs the studykit HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/studykit/api"
	"github.com/dmitrymomot/studykit/db"
	"github.com/dmitrymomot/studykit/pkg/ai"
	"github.com/dmitrymomot/studykit/pkg/audit"
	"github.com/dmitrymomot/studykit/pkg/config"
	"github.com/dmitrymomot/studykit/pkg/email"
	"github.com/dmitrymomot/studykit/pkg/httpserver"
	"github.com/dmitrymomot/studykit/pkg/jwt"
	"github.com/dmitrymomot/studykit/pkg/logger"
	"github.com/dmitrymomot/studykit/pkg/mongo"
	"github.com/dmitrymomot/studykit/pkg/pg"
	"github.com/dmitrymomot/studykit/pkg/ratelimit"
	"github.com/dmitrymomot/studykit/pkg/redis"
	"github.com/dmitrymomot/studykit/pkg/requestid"
	"github.com/dmitrymomot/studykit/pkg/search"
	"github.com/dmitrymomot/studykit/pkg/storage"
	"github.com/dmitrymomot/studykit/svc/account"
	"github.com/dmitrymomot/studykit/svc/admin"
	"github.com/dmitrymomot/studykit/svc/billing"
	"github.com/dmitrymomot/studykit/svc/plan"
	"github.com/dmitrymomot/studykit/svc/quota"
	"github.com/dmitrymomot/studykit/svc/study"
	"github.com/dmitrymomot/studykit/svc/subscription"
	"github.com/dmitrymomot/studykit/svc/usage"
)

type appConfig struct {
	PlanCatalog    string        `env:"PLAN_CATALOG_PATH"`
	Timezone       string        `env:"APP_TIMEZONE" envDefault:"UTC"`
	StrictQuota    bool          `env:"QUOTA_STRICT" envDefault:"false"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"2m"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	opts := append(logger.FromConfig(logCfg),
		logger.WithContextExtractors(requestid.LoggerExtractor(), jwt.LoggerExtractor()),
	)
	log := logger.New(opts...)
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil {
		log.Error("api stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		app      appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		mongoCfg mongo.Config
		srchCfg  search.Config
		blobCfg  storage.Config
		mailCfg  email.Config
		aiCfg    ai.Config
		billCfg  billing.Config
		jwtCfg   jwt.Config
		httpCfg  httpserver.Config
		rateCfg  ratelimit.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&app) },
		func() error { return config.Load(&pgCfg) },
		func() error { return config.Load(&redisCfg) },
		func() error { return config.Load(&mongoCfg) },
		func() error { return config.Load(&srchCfg) },
		func() error { return config.Load(&blobCfg) },
		func() error { return config.Load(&mailCfg) },
		func() error { return config.Load(&aiCfg) },
		func() error { return config.Load(&billCfg) },
		func() error { return config.Load(&jwtCfg) },
		func() error { return config.Load(&httpCfg) },
		func() error { return config.Load(&rateCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	loc, err := time.LoadLocation(app.Timezone)
	if err != nil {
		return err
	}
	catalog, err := plan.LoadCatalog(app.PlanCatalog)
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if pgCfg.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, db.Migrations, db.MigrationsDir, pgCfg, log); err != nil {
			return err
		}
	}
	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	var (
		deduper   billing.Deduper
		rateStore ratelimit.Store
	)
	if redisCfg.Enabled() {
		rdb, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		deduper = billing.NewRedisDeduper(rdb, billCfg.DedupeTTL)
		rateStore = ratelimit.NewRedisStore(rdb)
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)})
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.Run(ctx, time.Minute)
		rateStore = mem
	}
	authLimiter, err := ratelimit.New(rateStore, rateCfg.AuthRequests, rateCfg.AuthWindow, ratelimit.WithPrefix("ratelimit:auth:"))
	if err != nil {
		return err
	}

	var auditStore audit.Storage = audit.NewMemoryStorage(audit.WithLogMirror(log))
	if mongoCfg.Enabled() {
		mdb, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return err
		}
		defer func() { _ = mdb.Client().Disconnect(context.Background()) }()
		ms := audit.NewMongoStorage(mdb)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return err
		}
		auditStore = ms
		checks = append(checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(mdb)})
	}
	auditLog := audit.NewLogger(auditStore,
		audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
			id := requestid.FromContext(ctx)
			return id, id != ""
		}),
		audit.WithActorIDExtractor(func(ctx context.Context) (string, bool) {
			c, ok := jwt.ClaimsFromContext(ctx)
			if !ok {
				return "", false
			}
			return c.Subject, true
		}),
	)

	studyOpts := []study.Option{study.WithLogger(log), study.WithStrictQuota(app.StrictQuota)}
	if srchCfg.Enabled() {
		idx, err := search.New(ctx, srchCfg)
		if err != nil {
			return err
		}
		studyOpts = append(studyOpts, study.WithIndexer(idx))
		checks = append(checks, httpserver.Check{Name: "opensearch", Fn: idx.Healthcheck})
	}

	blobs, err := storage.New(ctx, blobCfg)
	if err != nil {
		return err
	}

	var sender email.Sender = email.NewLogSender(log)
	if mailCfg.PostmarkEnabled() {
		if sender, err = email.NewPostmarkSender(mailCfg); err != nil {
			return err
		}
	}

	var provider billing.Provider
	if billCfg.Enabled() {
		if provider, err = billing.NewProvider(billCfg); err != nil {
			return err
		}
	} else {
		log.WarnContext(ctx, "billing is not configured, checkout and webhooks are disabled")
	}

	tokens, err := jwt.New(jwtCfg)
	if err != nil {
		return err
	}

	gate := quota.NewGate(catalog, usage.NewPGCounter(pool), quota.WithLocation(loc))
	subs := subscription.NewService(subscription.NewPGStore(pool),
		subscription.WithAudit(auditLog),
		subscription.WithNotifier(subscription.NewEmailNotifier(sender, mailCfg.AppURL)),
		subscription.WithLogger(log),
	)
	billingOpts := []billing.ServiceOption{billing.WithLogger(log)}
	if deduper != nil {
		billingOpts = append(billingOpts, billing.WithDeduper(deduper))
	}

	h := api.NewHandlers(api.Deps{
		Log:      log,
		JWT:      tokens,
		Accounts: account.NewService(account.NewPGStore(pool), account.WithLogger(log)),
		Gate:     gate,
		Study:    study.NewService(study.NewPGStore(pool), gate, blobs, ai.New(aiCfg), studyOpts...),
		Billing:  billing.NewService(provider, billing.NewPGAccountStore(pool), subs, billCfg, billingOpts...),
		Admin:    admin.NewService(admin.NewPGStore(pool), subs,
			admin.WithAudit(auditLog),
			admin.WithLogger(log),
		),
		Ready:          checks,
		AuthLimiter:    authLimiter,
		RequestTimeout: app.RequestTimeout,
	})

	log.InfoContext(ctx, "starting api",
		slog.String("addr", httpCfg.Addr),
		slog.String("billing_provider", h.Billing.ProviderName()),
		slog.Bool("search", h.Study.SearchEnabled()),
	)
	return httpserver.New(httpCfg, log).Run(ctx, h.Router())
}
