package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/agent"
	"github.com/mohammad-safakhou/researcher/internal/cache"
	"github.com/mohammad-safakhou/researcher/internal/logging"
	"github.com/mohammad-safakhou/researcher/internal/scheduler"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/internal/telemetry"
	"github.com/mohammad-safakhou/researcher/provider"
	web_fetch "github.com/mohammad-safakhou/researcher/tools/web_fetch"
	web_search "github.com/mohammad-safakhou/researcher/tools/web_search"
)

const shutdownTimeout = 10 * time.Second

// NewEcho builds the HTTP surface. history may be nil, in which case the
// history routes are not mounted.
func NewEcho(cfg *config.Config, researcher Researcher, history HistoryStore) *echo.Echo {
	logger := logging.Component("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		ev := logger.Warn()
		if code >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Int("status", code).Str("method", req.Method).Str("path", req.URL.Path).Str("ip", c.RealIP()).Err(err).Msg("request failed")
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(requestLogger(logger))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(authMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	NewResearchHandler(researcher, cfg.Server.RequestTimeout).Register(api)
	if history != nil {
		(&HistoryHandler{store: history}).Register(api.Group("/history"))
	}

	if dir := cfg.Server.StaticDir; dir != "" {
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			e.Static("/", dir)
		}
	}
	return e
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("ip", v.RemoteIP)
			if sub, ok := c.Get(subjectKey).(string); ok {
				ev = ev.Str("subject", sub)
			}
			ev.Msg("request")
			return nil
		},
	})
}

// Run wires every dependency from cfg, serves HTTP on cfg.Server.Address and
// runs the scheduler until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("server")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	deps, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var history HistoryStore
	if deps.Store != nil {
		history = deps.Store
	}
	e := NewEcho(cfg, deps.Agent, history)

	sched := deps.Scheduler()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Address).Msg("listening")
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			cancel()
			<-schedDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info().Msg("shutting down")
	cancel()
	sctx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := e.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	<-schedDone
	return nil
}

// Deps is the wired research stack shared by the server and the CLI.
type Deps struct {
	Config *config.Config
	Agent  *agent.Agent
	Cache  *cache.Cache
	Store  *store.Store

	closers []func() error
}

// Build constructs search, fetch, LLM, cache and history from cfg. Redis and
// Postgres are optional and only connected when configured.
func Build(ctx context.Context, cfg *config.Config) (*Deps, error) {
	logger := logging.Component("server")
	d := &Deps{Config: cfg}

	searcher, err := web_search.NewWebSearcher(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	fetcher, err := web_fetch.NewWebFetcher(cfg.Fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	llm, err := provider.NewProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	var opts []agent.Option
	if cfg.Storage.Redis.Enabled() {
		client, err := cache.Conn(ctx, cfg.Storage.Redis)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client.Close)
		d.Cache = cache.New(client, cfg.Storage.Redis.CacheTTL)
		opts = append(opts, agent.WithCache(d.Cache))
		logger.Info().Str("addr", cfg.Storage.Redis.Addr()).Msg("result cache enabled")
	}
	if cfg.Storage.Postgres.Enabled() {
		dsn := cfg.Storage.Postgres.DSN()
		if err := store.Migrate(dsn, "up", 0); err != nil {
			logger.Warn().Err(err).Msg("migrations failed")
		}
		pctx := ctx
		if t := cfg.Storage.Postgres.Timeout; t > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		st, err := store.NewWithDSN(pctx, dsn)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, st.Close)
		d.Store = st
		opts = append(opts, agent.WithHistory(st))
		logger.Info().Msg("run history enabled")
	}

	d.Agent = agent.New(cfg, searcher, fetcher, llm, opts...)
	logger.Info().
		Str("search", searcher.Name()).
		Str("fetch", cfg.Fetch.Engine).
		Str("llm", llm.Name()).
		Str("model", llm.Model()).
		Msg("research stack ready")
	return d, nil
}

// Scheduler returns a scheduler over the configured schedules, using the
// store for last-run lookups and redis for cross-replica locks when present.
func (d *Deps) Scheduler() *scheduler.Scheduler {
	var opts []scheduler.Option
	if d.Store != nil {
		opts = append(opts, scheduler.WithHistory(d.Store))
	}
	if d.Cache != nil {
		opts = append(opts, scheduler.WithLocker(d.Cache))
	}
	return scheduler.New(d.Config.Schedules, d.Agent, opts...)
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
	d.closers = nil
}
