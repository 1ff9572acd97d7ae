package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/task"
	taskrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/cache"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// userStore is what both user repositories provide.
type userStore interface {
	user.Repository
	auth.CredentialStore
	auth.UserStore
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(lg.Sugar()); err != nil {
		lg.Sugar().Errorw("service stopped", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(sugar *zap.SugaredLogger) error {
	sugar.Info("starting service-task-go")

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		users userStore
		tasks task.Repository
	)
	switch storage := strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE"))); storage {
	case "memory":
		sugar.Warn("using in-memory storage; data is lost on restart")
		users, tasks = userrepo.NewMemoryRepo(), taskrepo.NewMemoryRepo()
	case "", "postgres":
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		reg.MustRegister(collectors.NewDBStatsCollector(db.DB, "taskapp"))
		users, tasks = userrepo.NewUserRepo(db), taskrepo.NewTaskRepo(db)
	default:
		return fmt.Errorf("unknown STORAGE %q", storage)
	}

	metrics := auth.NewMetrics(reg)
	opts := []auth.AuthenticatorOption{auth.WithLogger(sugar), auth.WithMetrics(metrics)}
	if cacheCfg := cache.ConfigFromEnv(); cacheCfg.Enabled() {
		rdb, err := cache.Connect(ctx, cacheCfg)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, auth.WithLimiter(auth.NewRedisAttemptLimiter(rdb, authCfg.LoginMaxAttempts, authCfg.LoginWindow)))
		sugar.Infow("login throttling enabled", "max_attempts", authCfg.LoginMaxAttempts, "window", authCfg.LoginWindow)
	}

	hashers := auth.NewHashers(authCfg)
	authn, err := auth.NewAuthenticator(users, hashers, opts...)
	if err != nil {
		return err
	}
	codec, err := auth.NewTokenCodec(authCfg)
	if err != nil {
		return err
	}
	ids, err := utilities.NewIDGenerator(utilities.NodeFromEnv())
	if err != nil {
		return fmt.Errorf("id generator: %w", err)
	}

	httpCfg := router.ConfigFromEnv()
	handler := router.RegisterRoutes(sugar, httpCfg, router.Deps{
		Users:    user.NewHandler(user.NewUserService(users, hashers, authn, codec, ids), sugar),
		Tasks:    task.NewHandler(task.NewTaskService(tasks, ids), sugar),
		Resolver: auth.NewResolver(codec, users, sugar, metrics),
		Registry: reg,
	})
	srv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", httpCfg.Addr, "prefix", httpCfg.Prefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
	return nil
}
