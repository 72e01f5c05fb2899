package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventhive/cmd/buildCFG"
	"eventhive/internal/api/api"
	"eventhive/internal/auth"
	rabbitReader "eventhive/internal/consumerWorker"
	"eventhive/internal/events"
	"eventhive/internal/feed"
	"eventhive/internal/mailer"
	"eventhive/internal/rabbit"
	"eventhive/internal/repo"
	"eventhive/internal/service"
	"eventhive/internal/slug"
	"eventhive/internal/users"
	"eventhive/pkg/obs"
)

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "EVENTHIVE"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	secrets, err := buildCFG.LoadSecrets()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets")
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	telemetryCfg := buildCFG.BuildTelemetryConfig(cfg)
	shutdownTracer, err := obs.InitTracer(context.Background(), telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}

	repository := openRepository(cfg, secrets, &log)
	defer repository.Close()
	if opts.migrateDown {
		if err := repository.MigrateDown(); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		log.Info().Msg("Migrations rolled back")
		return
	}
	if err := repository.MigrateUp(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var notifier events.Notifier = rabbit.Nop{}
	var reader *rabbitReader.Reader
	var readerDone <-chan struct{}
	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	if rabbitCfg.Url != "" {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		notifier = rmq

		mailCfg, err := buildCFG.BuildMailConfig(cfg, secrets)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load mail config")
		}
		var sender mailer.Sender = mailer.Log{Logger: &log}
		if mailCfg.Host != "" {
			sender = mailer.New(mailCfg.Host, mailCfg.Port, mailCfg.From, mailCfg.Password, &log)
		}
		reader = rabbitReader.NewReader(rmq, sender)
		reader.Start(workerCtx)
		readerDone = reader.Done()
	}

	authCfg := buildCFG.BuildAuthConfig(cfg, secrets)
	verifier, err := auth.NewVerifier(authCfg.Secret, authCfg.Issuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token verifier")
	}

	userService := users.New(repository, time.Now)
	eventService := events.New(events.Options{
		Store:    repository,
		Users:    userService,
		Plans:    auth.ClaimPlanResolver{},
		Slugs:    slug.NewGenerator(time.Now),
		Notifier: notifier,
		Now:      time.Now,
		Logger:   &log,
	})
	composer := feed.NewComposer(repository, time.Now)

	exploreCfg := buildCFG.BuildExploreConfig(cfg)
	serviceInstance := service.NewService(userService, eventService, composer,
		service.ExploreDefaults{City: exploreCfg.DefaultCity, State: exploreCfg.DefaultState}, &log)
	app := api.NewRouters(&api.Routers{
		Service:  serviceInstance,
		Verifier: verifier,
		Logger:   &log,
		Ping:     repository.Ping,
		Mode:     serverCfg.Mode,
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	case <-readerDone:
		// Exit so the supervisor restarts the process with a fresh broker connection.
		log.Error().Err(reader.Err()).Msg("Notification reader stopped. Initiating shutdown...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}
	log.Info().Msg("Shutdown complete")
}

type options struct {
	migrateDown bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("eventhive", pflag.ContinueOnError)
	fs.BoolVar(&o.migrateDown, "migrate-down", false, "roll back all migrations and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func openRepository(cfg *config.Config, secrets buildCFG.Secrets, log *zerolog.Logger) repo.Repository {
	dbCfg, err := buildCFG.BuildDBConfig(cfg, secrets, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}

	if dbCfg.Driver == buildCFG.DriverSQLite {
		repository, err := repo.OpenSQLite(dbCfg.SQLitePath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite database")
		}
		return repository
	}

	db, err := dbpg.New(dbCfg.MasterDSN, dbCfg.SlaveDSNs, dbCfg.Pool)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	repository, err := repo.NewPostgres(db, log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	log.Info().Msg("Database connected successfully")
	return repository
}
