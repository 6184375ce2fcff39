package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"newsdesk/pressroom/internal/alert"
	"newsdesk/pressroom/internal/config"
	"newsdesk/pressroom/internal/database"
	"newsdesk/pressroom/internal/emergency"
	"newsdesk/pressroom/internal/intake"
	"newsdesk/pressroom/internal/lifecycle"
	"newsdesk/pressroom/internal/policy"
	"newsdesk/pressroom/internal/publish"
	"newsdesk/pressroom/internal/scheduler"
	"newsdesk/pressroom/internal/server"
	"newsdesk/pressroom/internal/server/api"
	"newsdesk/pressroom/internal/store"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	cfg := config.DefaultConfig()

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCmd.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath,
		"Path to the YAML seed file (env: PRESSROOM_SEED_PATH)")
	importCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: PRESSROOM_DB_PATH)")
	importLogLevel := importCmd.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error (env: PRESSROOM_LOG_LEVEL)")

	intakeCmd := flag.NewFlagSet("intake", flag.ExitOnError)
	intakeCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: PRESSROOM_DB_PATH)")
	intakeOnce := intakeCmd.Bool("once", false, "Run a single intake pass and exit")
	intakeLogLevel := intakeCmd.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error (env: PRESSROOM_LOG_LEVEL)")

	startCmd := flag.NewFlagSet("start", flag.ExitOnError)
	startCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: PRESSROOM_DB_PATH)")
	startCmd.IntVar(&cfg.ChannelWorkers, "workers", cfg.ChannelWorkers,
		"Concurrent channel publish calls per job (env: PRESSROOM_CHANNEL_WORKERS)")
	startLogLevel := startCmd.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error (env: PRESSROOM_LOG_LEVEL)")

	serverCmd := flag.NewFlagSet("server", flag.ExitOnError)
	serverCmd.StringVar(&cfg.DBPath, "db", cfg.DBPath,
		"Path to the SQLite database file (env: PRESSROOM_DB_PATH)")
	serverCmd.StringVar(&cfg.ServerHost, "host", cfg.ServerHost,
		"Host to bind the server to (env: PRESSROOM_HOST)")
	serverCmd.IntVar(&cfg.ServerPort, "port", cfg.ServerPort,
		"Port to listen on (env: PRESSROOM_PORT)")
	serverLogLevel := serverCmd.String("log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error (env: PRESSROOM_LOG_LEVEL)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "import":
		importCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, *importLogLevel)
		err = runImport(cfg)

	case "intake":
		intakeCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, *intakeLogLevel)
		err = runIntake(cfg, *intakeOnce)

	case "start":
		startCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, *startLogLevel)
		err = runStart(cfg)

	case "server":
		serverCmd.Parse(os.Args[2:])
		applyLogLevel(cfg, *serverLogLevel)
		err = runServer(cfg)

	case "-h", "--help", "help":
		printUsage()
		os.Exit(0)

	default:
		log.Error().Str("command", os.Args[1]).Msg("Unknown command")
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: pressd [command] [options]")
	fmt.Println("Commands: import, intake, start, server")
	fmt.Println("\nFor command-specific options, use: pressd [command] -h")
}

func applyLogLevel(cfg *config.Config, levelStr string) {
	if level, err := zerolog.ParseLevel(levelStr); err == nil {
		cfg.LogLevel = level
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
}

// services bundles the wired application for the long-running commands.
type services struct {
	db        *database.DB
	store     *store.Store
	lifecycle *lifecycle.Manager
	scheduler *scheduler.Scheduler
	queue     *emergency.Queue
	intake    *intake.Intake
}

func buildServices(cfg *config.Config) (*services, error) {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := store.New(db)
	alerts := alert.NewLogNotifier(log.Logger)
	lc := lifecycle.NewManager(s, alerts)

	registry := publish.NewRegistry(publish.BreakerSettings{
		ConsecutiveFailures: config.DefaultBreakerThreshold,
		Cooldown:            time.Duration(config.DefaultBreakerCooldownMs) * time.Millisecond,
	})
	if cfg.WebhookURL != "" {
		registry.Register(publish.NewWebhookPublisher("web", cfg.WebhookURL, cfg.WebhookAPIKey))
	}
	if cfg.DiscordToken != "" && cfg.DiscordChannel != "" {
		session, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create discord session: %w", err)
		}
		registry.Register(publish.NewDiscordPublisher("discord", session, cfg.DiscordChannel))
	}
	if len(registry.Channels()) == 0 {
		log.Warn().Msg("No channel adapters configured, registering loopback publisher")
		registry.Register(publish.NewLoopbackPublisher("loopback"))
	}

	sched := scheduler.New(s, policy.NewGate(s), registry, alerts, scheduler.Config{
		Interval:       cfg.Interval,
		MaxAttempts:    cfg.MaxAttempts,
		CallTimeout:    cfg.CallTimeout,
		ChannelWorkers: cfg.ChannelWorkers,
	})

	return &services{
		db:        db,
		store:     s,
		lifecycle: lc,
		scheduler: sched,
		queue:     emergency.NewQueue(s, sched),
		intake:    intake.New(s, lc, cfg.ChannelWorkers, cfg.BreakingKeywords),
	}, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	return ctx, cancel
}

// runImport bootstraps sources, rules and policies from the seed file.
func runImport(cfg *config.Config) error {
	db, err := database.NewDB(database.NewConfig(cfg.DBPath))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	report, err := intake.ImportSeed(context.Background(), store.New(db), cfg.SeedPath)
	if err != nil {
		return err
	}
	log.Info().
		Int("sources", report.Sources).
		Int("rules", report.Rules).
		Int("policies", report.Policies).
		Msg("Import complete")
	return nil
}

// runIntake fetches sources once or on the configured interval.
func runIntake(cfg *config.Config, once bool) error {
	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if once {
		stats, err := svc.intake.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info().
			Int("sources", stats.Sources).
			Int64("processed", stats.Processed).
			Int64("duplicates", stats.Duplicates).
			Int64("escalated", stats.Escalated).
			Msg("Intake pass finished")
		return nil
	}

	svc.intake.Run(ctx, cfg.IntakeInterval)
	return nil
}

// runStart runs the intake loop and the publish scheduler together.
func runStart(cfg *config.Config) error {
	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.intake.Run(ctx, cfg.IntakeInterval)
	}()
	go func() {
		defer wg.Done()
		svc.scheduler.Run(ctx)
	}()
	wg.Wait()

	// Let in-flight SQLite writes settle before closing.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// runServer starts the admin HTTP API alongside the publish scheduler so
// manual runs and emergency publishes execute in-process.
func runServer(cfg *config.Config) error {
	svc, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	go svc.scheduler.Run(ctx)

	handler := api.NewHandler(svc.store, svc.lifecycle, svc.scheduler, svc.queue)
	return server.RunServer(ctx, svc.db, handler, cfg.ListenAddr(), log.Logger, cfg.APIKey)
}
