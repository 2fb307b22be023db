// miot-relay drives one relay output from commands received on an MQTT topic.
//
// Payloads ON/1 drive the output high and OFF/0 drive it low; anything else
// is ignored. The process runs until it receives SIGINT/SIGTERM, its control
// file is deleted, or the broker connection is lost.
//
// Exit status: 0 on a requested stop, 2 on invalid configuration, 1 on any
// other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/michalvitousek/miot/internal/agent"
	"github.com/michalvitousek/miot/internal/api"
	"github.com/michalvitousek/miot/internal/infrastructure/config"
	"github.com/michalvitousek/miot/internal/infrastructure/database"
	"github.com/michalvitousek/miot/internal/infrastructure/influxdb"
	"github.com/michalvitousek/miot/internal/infrastructure/logging"
	"github.com/michalvitousek/miot/internal/journal"
	"github.com/michalvitousek/miot/internal/lifecycle"
	"github.com/michalvitousek/miot/internal/metrics"
	"github.com/michalvitousek/miot/internal/relay"
	"github.com/michalvitousek/miot/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used when present.
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config file path.
const configEnv = "MIOT_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stderr)
	cancel()

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(agent.ExitCode(err))
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - args: Command-line arguments without the program name
//   - stderr: Destination for usage output
//
// Returns:
//   - error: nil on a requested stop, flag.ErrHelp after -h, or the failure
func run(ctx context.Context, args []string, stderr io.Writer) error {
	fl, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	path := configPath(fl.configPath)
	cfg, err := config.Load(path, fl.options()...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting miot-relay",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", path,
	)

	mode, err := relay.ParseMode(cfg.Relay.Mode)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	actuator, err := relay.Open(cfg.Relay.Pin, mode, log.With("component", "relay"))
	if err != nil {
		return fmt.Errorf("opening relay: %w", err)
	}

	// Until the agent owns the actuator it is released here.
	owned := false
	defer func() {
		if owned {
			return
		}
		if shutdownErr := actuator.Shutdown(); shutdownErr != nil {
			log.Error("error releasing relay", "error", shutdownErr)
		}
	}()

	m := metrics.New(metrics.DefaultNamespace)
	deps := agent.Deps{
		Config:   cfg,
		Actuator: actuator,
		Logger:   log.With("component", "agent"),
		Metrics:  m,
	}

	var repo *journal.SQLiteRepository
	if cfg.Journal.Enabled {
		db, openErr := openJournal(ctx, cfg, log)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		repo = journal.NewSQLiteRepository(db.DB)
		deps.Journal = repo
		pruneJournal(ctx, cfg, repo, log)
	} else {
		log.Info("actuation journal disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		deps.Telemetry = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	a, err := agent.New(deps)
	if err != nil {
		return err
	}
	owned = true

	cf := lifecycle.ControlFile{Path: cfg.Lifecycle.ControlFile, Interval: cfg.GetPollInterval()}
	if err := cf.Create(); err != nil {
		a.Close() //nolint:errcheck // Close never fails
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return a.Run(runCtx)
	})

	if cf.Enabled() {
		log.Info("watching control file", "path", cf.Path, "interval", cf.Interval)
		g.Go(func() error {
			err := cf.Wait(runCtx)
			switch {
			case err == nil:
				log.Info("control file removed, stopping", "path", cf.Path)
				stop()
				return nil
			case errors.Is(err, context.Canceled):
				return nil
			default:
				return fmt.Errorf("watching control file: %w", err)
			}
		})
	}

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Agent:   a,
			Metrics: m.Handler(),
			Version: version,
		}
		if repo != nil {
			apiDeps.Journal = repo
		}
		srv, srvErr := api.New(apiDeps)
		if srvErr != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		g.Go(func() error { return srv.Run(runCtx) })
	}

	err = g.Wait()
	log.Info("miot-relay stopped", "exit_code", agent.ExitCode(err))
	return err
}

// openJournal opens and migrates the actuation journal database.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("journal database ready", "path", db.Path())
	return db, nil
}

// pruneJournal drops entries older than the retention window.
func pruneJournal(ctx context.Context, cfg *config.Config, repo *journal.SQLiteRepository, log *logging.Logger) {
	retention := cfg.GetRetention()
	if retention <= 0 {
		return
	}
	n, err := repo.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		log.Warn("pruning journal", "error", err)
		return
	}
	if n > 0 {
		log.Info("journal pruned", "removed", n, "retention_days", cfg.Journal.RetentionDays)
	}
}

// configPath resolves the configuration file: the -config flag, then
// MIOT_CONFIG, then configs/config.yaml when it exists. An empty result
// means defaults plus environment only.
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
