package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tribebot-backend/internal/common/config"
	"tribebot-backend/internal/common/i18n"
	"tribebot-backend/internal/common/logger"
	"tribebot-backend/internal/features/account/repository"
	pgrepo "tribebot-backend/internal/features/account/repository/postgres"
	sqliterepo "tribebot-backend/internal/features/account/repository/sqlite"
	accountservice "tribebot-backend/internal/features/account/service"
	"tribebot-backend/internal/features/importer"
	"tribebot-backend/internal/features/registration/session"
	redissession "tribebot-backend/internal/features/registration/session/redis"
	regservice "tribebot-backend/internal/features/registration/service"
	apphttp "tribebot-backend/internal/http"
	"tribebot-backend/internal/platform/db"
	redisplatform "tribebot-backend/internal/platform/redis"
)

// Tribes provisioned idempotently at startup.
var seedTribes = []struct {
	id   int64
	name string
}{
	{1, "Aqua"},
	{2, "Ignis"},
	{3, "Air"},
	{4, "Terra"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger.Init("tribebot-backend", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open account store")
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Account store opened")

	locales, err := i18n.Load(cfg.Locale.Default, cfg.Locale.Supported)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load message catalogs")
	}

	// Seeding never consults the assignment policy, so a provisional
	// fixed assigner is enough until the tribe list exists.
	seeder := accountservice.NewProvisioningService(store, accountservice.NewFixedAssigner(cfg.Tribes.DefaultID), locales)
	for _, tribe := range seedTribes {
		if _, err := seeder.CreateTribe(ctx, tribe.name, "", tribe.id); err != nil {
			logger.Fatal().Err(err).Str("tribe_name", tribe.name).Msg("Failed to seed tribe")
		}
	}

	tribes, err := store.ListTribes(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to list tribes")
	}
	tribeIDs := make([]int64, 0, len(tribes))
	tribesByName := make(map[string]int64, len(tribes))
	for _, tribe := range tribes {
		tribeIDs = append(tribeIDs, tribe.ID)
		tribesByName[strings.ToLower(tribe.Name)] = tribe.ID
	}

	assigner, err := buildAssigner(cfg, tribeIDs)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build tribe assigner")
	}
	provisioner := accountservice.NewProvisioningService(store, assigner, locales)

	if cfg.Import.Enabled {
		imp := importer.New(provisioner, tribesByName, cfg.Registration.SuperuserIDs, locales)
		report, err := imp.RunFile(ctx, cfg.Import.Path)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Import.Path).Msg("Bulk import failed")
		}
		logger.Info().Int("created", report.Created).Int("skipped", report.Skipped).Msg("Bulk import completed")
	}

	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open session store")
	}

	outbox := apphttp.NewOutbox()
	engine := regservice.NewEngine(sessions, provisioner, locales, outbox, regservice.Secrets{
		UserKey:  cfg.Registration.UserSecretKey,
		AdminKey: cfg.Registration.AdminSecretKey,
	})

	router := apphttp.NewRouter(cfg, engine, outbox, store)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	logger.Info().Msg("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.AccountStore, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return sqliterepo.Open(cfg.Database.Path)
	case "postgres":
		sqlDB, err := db.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return pgrepo.New(sqlDB), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		client, err := redisplatform.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return redissession.NewStore(client, cfg.Session.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func buildAssigner(cfg *config.Config, tribeIDs []int64) (accountservice.TribeAssigner, error) {
	switch cfg.Tribes.Assigner {
	case "fixed":
		return accountservice.NewFixedAssigner(cfg.Tribes.DefaultID), nil
	case "random":
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		return accountservice.NewRandomAssigner(tribeIDs, rnd)
	default:
		return nil, fmt.Errorf("unknown tribe assigner %q", cfg.Tribes.Assigner)
	}
}
