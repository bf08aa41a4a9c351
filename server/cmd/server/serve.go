package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clientledger/clientledger/server/internal/api"
	"github.com/clientledger/clientledger/server/internal/archive"
	"github.com/clientledger/clientledger/server/internal/auth"
	"github.com/clientledger/clientledger/server/internal/cache"
	"github.com/clientledger/clientledger/server/internal/config"
	"github.com/clientledger/clientledger/server/internal/customer"
	"github.com/clientledger/clientledger/server/internal/grpcops"
	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/notify"
	"github.com/clientledger/clientledger/server/internal/store"
	"github.com/clientledger/clientledger/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, configPath string) error {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("clientledger-server starting", "version", version, "config", configPath)

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			return err
		}
	}
	sc := cfg.Server
	if lvl, err := config.ParseLevel(sc.LogLevel); err == nil {
		level.Set(lvl)
	}

	slog.Info("config loaded",
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"storage", sc.Storage.Driver,
		"archive", sc.Archive.Driver,
		"life_expectancy_years", sc.LifeExpectancyYears,
	)

	m := metrics.New()

	st, err := store.Open(ctx, sc.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var customers store.Customers = st
	if sc.Cache.Size > 0 {
		c, err := cache.New(st, sc.Cache.Size, m)
		if err != nil {
			return err
		}
		customers = c
	}

	dispatcher := notify.NewDispatcher(notify.Options{
		Workers:     sc.Notify.Workers,
		QueueSize:   sc.Notify.QueueSize,
		MaxAttempts: sc.Notify.MaxAttempts,
	}, sinks(sc.Notify), m)
	dispatcher.SetAdmin(sc.Notify.AdminEmail)

	secret, err := sc.Auth.Secret()
	if err != nil {
		return err
	}
	if secret == nil {
		slog.Warn("auth: no signing key configured, using a random key; tokens will not survive a restart",
			"secret_env", sc.Auth.SecretEnv)
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
	}
	authSvc := auth.NewService(st, auth.NewTokens(secret, sc.Auth.TokenTTL, sc.Auth.Issuer), m)
	if pw := sc.Auth.Admin.Password(); pw != "" {
		created, err := authSvc.SeedAdmin(ctx, sc.Auth.Admin.Email, pw)
		if err != nil {
			return fmt.Errorf("seed administrator: %w", err)
		}
		if created {
			slog.Info("auth: administrator created", "email", sc.Auth.Admin.Email)
		}
	} else {
		slog.Warn("auth: no administrator password configured, skipping seed",
			"password_env", sc.Auth.Admin.PasswordEnv)
	}

	archiver, err := archive.Open(ctx, sc.Archive, m)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	var custSvc *customer.Service
	hub := ws.New(func(ctx context.Context) (any, error) {
		s, err := custSvc.Stats(ctx, "")
		if err != nil {
			return nil, err
		}
		return api.NewStatsResponse(s), nil
	}, sc.Stream.Interval, sc.CORS.AllowedOrigins, m)

	custSvc = customer.New(customers, dispatcher, m, customer.Options{
		LifeExpectancyYears: sc.LifeExpectancyYears,
		OnChange:            hub.Trigger,
	})

	apiHandler := api.New(api.Options{
		Customers:      custSvc,
		Auth:           authSvc,
		Archive:        archiver,
		Metrics:        m,
		AllowedOrigins: sc.CORS.AllowedOrigins,
		Ping:           st.Ping,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("GET /ws/kpis", auth.Authenticate(authSvc, apiHandler.Fail)(hub))
	mux.Handle("GET /metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
	}
	ops := grpcops.New(authSvc, st.Ping, grpcops.DefaultProbeInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ops.Serve(gctx, grpcLis)
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("clientledger-server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, func(next *config.Config) {
				lvl, err := config.ParseLevel(next.Server.LogLevel)
				if err != nil {
					slog.Warn("config: ignoring log level", "err", err)
				} else {
					level.Set(lvl)
				}
				dispatcher.SetAdmin(next.Server.Notify.AdminEmail)
				slog.Info("config: applied", "log_level", next.Server.LogLevel)
			})
		})
	}

	return g.Wait()
}

// sinks builds the notification sinks enabled in cfg. Misconfigured sinks
// are logged and skipped.
func sinks(cfg config.NotifyConfig) []notify.Sink {
	var out []notify.Sink
	if cfg.SMTP.Host != "" {
		e, err := notify.NewEmail(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password(),
			From:     cfg.SMTP.From,
		})
		if err != nil {
			slog.Error("notify: email sink disabled", "err", err)
		} else {
			out = append(out, e)
		}
	}
	for _, w := range cfg.Webhooks {
		url := w.URL()
		if url == "" {
			slog.Warn("notify: webhook skipped, URL variable is empty", "type", w.Type, "url_env", w.URLEnv)
			continue
		}
		wh, err := notify.NewWebhook(w.Type, url)
		if err != nil {
			slog.Error("notify: webhook disabled", "type", w.Type, "err", err)
			continue
		}
		out = append(out, wh)
	}
	if len(out) == 0 {
		slog.Warn("notify: no sinks configured, notifications are dropped")
	}
	return out
}
