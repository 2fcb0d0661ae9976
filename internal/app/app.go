// Package app builds the resolver stack from configuration and owns its
// lifetime.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"igresolver/internal/server"
	"igresolver/pkg/auth"
	"igresolver/pkg/cache"
	"igresolver/pkg/config"
	"igresolver/pkg/embed"
	"igresolver/pkg/graphql"
	"igresolver/pkg/instagram"
	"igresolver/pkg/logger"
	"igresolver/pkg/private"
	"igresolver/pkg/ratelimit"
	"igresolver/pkg/resolver"
	"igresolver/pkg/retry"
	"igresolver/pkg/session"
)

// PasswordSource looks up a stored password
type PasswordSource interface {
	Password(username string) (string, error)
}

// Option overrides a dependency New would otherwise build
type Option func(*options)

type options struct {
	passwords PasswordSource
	store     cache.Store
	factory   private.Factory
}

// WithPasswords sets where a password missing from the config is looked up
func WithPasswords(src PasswordSource) Option {
	return func(o *options) { o.passwords = src }
}

// WithCacheStore replaces the configured cache store
func WithCacheStore(store cache.Store) Option {
	return func(o *options) { o.store = store }
}

// WithSessionFactory replaces the mobile API session factory
func WithSessionFactory(factory private.Factory) Option {
	return func(o *options) { o.factory = factory }
}

// App is the constructed resolver stack
type App struct {
	Config *config.Config
	Logger logger.Logger

	// API is the cached pipeline every request goes through
	API      *cache.API
	Pipeline *resolver.Pipeline
	Private  *private.Tier

	store cache.Store
}

// New builds the application. It performs no upstream traffic; call Start
// to establish the private session.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	limiter := ratelimit.New(cfg.RateLimit)
	retryCfg := retry.FromConfig(cfg.Retry, log)

	transport := func(base instagram.Options) (*instagram.Client, error) {
		base.UserAgent = cfg.Instagram.UserAgent
		base.Limiter = limiter
		base.Retry = retryCfg
		base.Logger = log
		return instagram.NewClient(base)
	}

	store := o.store
	if store == nil {
		store = buildStore(ctx, cfg.Redis, log)
	}

	a := &App{Config: cfg, Logger: log, store: store}

	var tiers []resolver.Tier
	var scraper *embed.Scraper
	for _, name := range cfg.Tiers.Order {
		switch name {
		case config.TierEmbed:
			pages, err := transport(instagram.Options{Timeout: cfg.Instagram.RequestTimeout})
			if err != nil {
				return nil, fmt.Errorf("embed transport: %w", err)
			}
			direct, err := transport(instagram.Options{Timeout: cfg.Tiers.GraphQLTimeout})
			if err != nil {
				return nil, fmt.Errorf("graphql transport: %w", err)
			}
			var proxied *instagram.Client
			if proxy := firstNonEmpty(cfg.Instagram.Proxies.HTTPS, cfg.Instagram.Proxies.HTTP); proxy != "" {
				proxied, err = transport(instagram.Options{Timeout: cfg.Tiers.GraphQLTimeout, ProxyURL: proxy})
				if err != nil {
					return nil, fmt.Errorf("graphql proxy transport: %w", err)
				}
			}

			scraper = embed.New(pages, graphql.New(direct, proxied, log), log)
			tiers = append(tiers, resolver.Tier{Name: name, API: scraper, Timeout: cfg.Tiers.EmbedTimeout})

		case config.TierPrivate:
			tier, err := a.buildPrivate(cfg, o, transport)
			if err != nil {
				return nil, err
			}
			a.Private = tier
			tiers = append(tiers, resolver.Tier{Name: name, API: tier, Timeout: cfg.Tiers.PrivateTimeout})

		default:
			return nil, fmt.Errorf("unknown tier %q", name)
		}
	}

	a.Pipeline = resolver.New(log, tiers...)
	a.API = cache.NewAPI(a.Pipeline, store, cfg.Cache, log)
	if scraper != nil {
		// post owners are enriched through the cached chain
		scraper.SetUserResolver(a.API)
	}

	log.InfoWithFields("resolver ready", map[string]interface{}{
		"tiers":   a.Pipeline.Tiers(),
		"redis":   cfg.Redis.Enabled,
		"proxied": cfg.Instagram.Proxies.Enabled(),
	})
	return a, nil
}

func (a *App) buildPrivate(cfg *config.Config, o *options, transport func(instagram.Options) (*instagram.Client, error)) (*private.Tier, error) {
	creds := private.Credentials{Username: cfg.Instagram.Username, Password: cfg.Instagram.Password}
	if creds.Username == "" {
		return nil, errors.New("the private tier needs instagram.username")
	}
	if creds.Password == "" {
		password, err := a.lookupPassword(o, creds.Username)
		if err != nil {
			return nil, fmt.Errorf("no password for %s: %w", creds.Username, err)
		}
		creds.Password = password
	}

	factory := o.factory
	if factory == nil {
		mobile, err := transport(instagram.Options{
			Timeout:  cfg.Instagram.RequestTimeout,
			ProxyURL: firstNonEmpty(cfg.Instagram.Proxies.HTTP, cfg.Instagram.Proxies.HTTPS),
		})
		if err != nil {
			return nil, fmt.Errorf("private transport: %w", err)
		}
		factory = private.NewMobileFactory(mobile, "", a.Logger)
	}

	store := session.NewFileStore(cfg.Instagram.SettingsCacheFilePath, a.Logger)
	tier := private.New(factory, creds, store, a.Logger)
	tier.OnLogin(func(state *session.State) {
		a.Logger.InfoWithFields("private session persisted", map[string]interface{}{
			"path":      store.Path(),
			"device_id": state.DeviceID,
		})
	})
	return tier, nil
}

func (a *App) lookupPassword(o *options, username string) (string, error) {
	src := o.passwords
	if src == nil {
		manager, err := auth.NewManager()
		if err != nil {
			return "", err
		}
		src = manager
	}
	return src.Password(username)
}

func buildStore(ctx context.Context, cfg config.RedisConfig, log logger.Logger) cache.Store {
	if !cfg.Enabled {
		log.Info("redis disabled, caching in memory")
		return cache.NewMemoryStore()
	}
	store := cache.NewRedisStore(cfg)
	if err := store.Ping(ctx); err != nil {
		log.WarnWithFields("redis unreachable, requests will bypass the cache until it recovers", map[string]interface{}{
			"addr":  cfg.Addr(),
			"error": err.Error(),
		})
	}
	return store
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Handler returns the HTTP routes
func (a *App) Handler() http.Handler {
	return server.NewRouter(a.API, a.API, a.Logger)
}

// Start establishes the private session when that tier is configured, so
// bad credentials fail before any request is served
func (a *App) Start(ctx context.Context) error {
	if a.Private == nil {
		return nil
	}
	if err := a.Private.Start(ctx); err != nil {
		return fmt.Errorf("private session: %w", err)
	}
	return nil
}

// Serve starts the private session, then runs the HTTP server until ctx is
// cancelled or SIGINT/SIGTERM arrives, then shuts it down gracefully
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(a.Config.Server, a.Handler(), a.Logger)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutting down")
	case err := <-srvErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases the cache connection
func (a *App) Close() error {
	return a.store.Close()
}
