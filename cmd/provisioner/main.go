package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/securenotes/provisioner/common"
	"github.com/securenotes/provisioner/config"
	"github.com/securenotes/provisioner/healthcheck"
	"github.com/securenotes/provisioner/hostinfo"
	"github.com/securenotes/provisioner/httpserver"
	"github.com/securenotes/provisioner/interfaces"
	"github.com/securenotes/provisioner/metrics"
	"github.com/securenotes/provisioner/pipeline"
	"github.com/securenotes/provisioner/secrets"
	"github.com/securenotes/provisioner/sources"
	"github.com/securenotes/provisioner/state"
	"github.com/securenotes/provisioner/steps"
	"github.com/securenotes/provisioner/sysutil"
)

var appFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "mongo-uri",
		Usage:   "MongoDB connection string for the notes application (required)",
		EnvVars: []string{"MONGO_URI"},
	},
	&cli.StringFlag{
		Name:    "secret-key",
		Usage:   "Application signing key. Generated and logged once if unset",
		EnvVars: []string{"SECRET_KEY"},
	},
	&cli.StringFlag{
		Name:    "domain",
		Value:   config.SentinelDomain,
		Usage:   "Public domain name. Leave at 'localhost' to skip TLS",
		EnvVars: []string{"DOMAIN_NAME"},
	},
	&cli.StringFlag{
		Name:    "source",
		Value:   "file://.",
		Usage:   "Application source location (file://, git+https://, s3://, ipfs://)",
		EnvVars: []string{"SOURCE_URI"},
	},
	&cli.StringFlag{
		Name:    "install-path",
		Value:   "/opt/secure-notes",
		Usage:   "Directory the application is installed into",
	},
	&cli.StringFlag{
		Name:  "service-user",
		Value: "notes",
		Usage: "System account the application runs as",
	},
	&cli.IntFlag{
		Name:  "app-port",
		Value: 8000,
		Usage: "Loopback port gunicorn binds to (never publicly reachable)",
	},
	&cli.StringFlag{
		Name:  "manifest",
		Usage: "Optional deploy.yaml overriding packages, workers, port",
	},
	&cli.StringFlag{
		Name:    "vault-secret-path",
		Usage:   "Fetch the signing key from Vault KV v2 at <mount>/<path> (uses VAULT_ADDR/VAULT_TOKEN)",
		EnvVars: []string{"VAULT_SECRET_PATH"},
	},
}

var opsFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "state-db",
		Value: "/var/lib/secure-notes/deploy.db",
		Usage: "SQLite deployment journal path",
	},
	&cli.StringFlag{
		Name:  "status-addr",
		Usage: "If set, serve the deployment status API on this address during the run",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "If set, serve Prometheus metrics on this address during the run",
	},
}

var logFlags []cli.Flag = []cli.Flag{
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
}

const usage string = `Secure Notes deployment orchestrator
Turns a bare Ubuntu host into a running instance of the notes application:
* OS packages, firewall and service account
* Application source, virtualenv and secrets file
* systemd unit and Nginx reverse proxy
* Optional TLS via certbot when a domain is configured`

func main() {
	app := &cli.App{
		Name:   "provisioner",
		Usage:  usage,
		Flags:  slices.Concat(appFlags, opsFlags, logFlags),
		Action: runDeploy,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the last deployment run and its step outcomes",
				Flags:  slices.Concat(opsFlags, logFlags),
				Action: runStatus,
			},
			{
				Name:   "history",
				Usage:  "List recent deployment runs",
				Flags:  slices.Concat(opsFlags, logFlags),
				Action: runHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runDeploy(cCtx *cli.Context) error {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		JSON:    cCtx.Bool("log-json"),
		Service: cCtx.String("log-service"),
		Version: common.Version,
	})

	// Preconditions first: nothing below may mutate host state until both
	// privilege and required inputs are verified.
	if err := config.RequireRoot(); err != nil {
		logger.Error("Precondition failed", "err", err)
		return err
	}
	if cCtx.String("mongo-uri") == "" {
		logger.Error("Precondition failed", "err", config.ErrMissingMongoURI)
		return config.ErrMissingMongoURI
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secretKey, generated, err := resolveSecret(ctx, cCtx, logger)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.Inputs{
		MongoURI:     cCtx.String("mongo-uri"),
		SecretKey:    secretKey,
		GeneratedKey: generated,
		DomainName:   cCtx.String("domain"),
		SourceURI:    cCtx.String("source"),
		InstallPath:  cCtx.String("install-path"),
		ServiceUser:  cCtx.String("service-user"),
		AppPort:      cCtx.Int("app-port"),
		StateDB:      cCtx.String("state-db"),
		ManifestPath: cCtx.String("manifest"),
	})
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		return err
	}

	store, err := state.Open(cfg.StateDB)
	if err != nil {
		logger.Error("Could not open deployment journal", "err", err)
		return err
	}
	defer store.Close()

	runID := uuid.Must(uuid.NewRandom()).String()
	logger = logger.With("run", runID)

	collector := metrics.NewCollector(common.PackageName)
	collector.SetRunInfo(runID, common.Version)
	if addr := cCtx.String("metrics-addr"); addr != "" {
		metricsSrv := metrics.New(collector, addr)
		go func() {
			logger.Info("Starting metrics server", "metricsAddress", addr)
			if err := metricsSrv.ListenAndServe(); err != nil {
				logger.Debug("Metrics server stopped", "err", err)
			}
		}()
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shCtx)
		}()
	}

	var statusSrv *httpserver.Server
	if addr := cCtx.String("status-addr"); addr != "" {
		statusSrv = httpserver.New(&httpserver.HTTPServerConfig{
			ListenAddr:               addr,
			Log:                      logger,
			GracefulShutdownDuration: 5 * time.Second,
			ReadTimeout:              10 * time.Second,
			WriteTimeout:             10 * time.Second,
		}, store, runID)
		statusSrv.RunInBackground()
		defer statusSrv.Shutdown()
	}

	runner := sysutil.NewExecRunner(logger)
	fetcherFactory := sources.NewFactory(logger, runner)
	fetcher, err := fetcherFactory.FetcherFor(cfg.SourceURI)
	if err != nil {
		logger.Error("Invalid source location", "uri", cfg.SourceURI, "err", err)
		return err
	}

	resolver := hostinfo.NewResolver(logger)
	prober := healthcheck.NewProber(cfg.HealthInterval, cfg.HealthTimeout, logger)

	deploySteps := []pipeline.Step{
		steps.NewInstallPackages(cfg, runner, logger),
		steps.NewConfigureFirewall(runner, logger),
		steps.NewCreateServiceUser(cfg, runner, logger, sysutil.UserExists),
		steps.NewInstallSources(cfg, fetcher, runner, logger),
		steps.NewBuildRuntime(cfg, runner, logger),
		steps.NewWriteEnvFile(cfg, logger),
		steps.NewInstallServiceUnit(cfg, runner, logger),
		steps.NewConfigureProxy(cfg, runner, logger),
		steps.NewIssueCertificate(cfg, runner, resolver, logger),
		steps.NewStartServices(cfg, runner, prober, logger),
		steps.NewInstallOpsTools(cfg, logger),
		steps.NewSummary(cfg, resolver, os.Stdout, logger),
	}

	if err := pipeline.NewRunner(logger, store, collector).Run(ctx, runID, deploySteps); err != nil {
		logger.Error("Deployment failed", "err", err)
		logger.Info("The journal records the failed step; fix the cause and re-run", "stateDB", cfg.StateDB)
		return err
	}

	if statusSrv != nil {
		statusSrv.SetReady()
	}
	logger.Info("Deployment succeeded")
	return nil
}

// resolveSecret picks the signing key source: operator-supplied, Vault, or
// generated. A generated key is logged exactly once for operator capture; it
// is persisted nowhere but the rendered env file.
func resolveSecret(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (key string, generated bool, err error) {
	var source interfaces.SecretSource

	switch {
	case cCtx.String("secret-key") != "":
		source = &secrets.StaticSource{Key: cCtx.String("secret-key")}
	case cCtx.String("vault-secret-path") != "":
		vs, err := secrets.NewVaultSource(cCtx.String("vault-secret-path"), logger)
		if err != nil {
			return "", false, err
		}
		source = vs
	default:
		source = &secrets.GeneratedSource{}
		generated = true
	}

	key, err = source.SecretKey(ctx)
	if err != nil {
		logger.Error("Could not resolve signing key", "source", source.Name(), "err", err)
		return "", false, err
	}

	if generated {
		logger.Info("Generated SECRET_KEY (capture it now, it will not be printed again)", "secretKey", key)
	}
	return key, generated, nil
}

func runStatus(cCtx *cli.Context) error {
	store, err := state.Open(cCtx.String("state-db"))
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.LastRun()
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("no deployments recorded")
		return nil
	}

	fmt.Printf("run %s  status=%s  started=%s\n", run.ID, run.Status, run.StartedAt.Format(time.RFC3339))
	stepRecords, err := store.Steps(run.ID)
	if err != nil {
		return err
	}
	for _, rec := range stepRecords {
		line := fmt.Sprintf("  %-22s %-8s %6dms", rec.Name, rec.Status, rec.DurationMS)
		if rec.Error != "" {
			line += "  " + rec.Error
		}
		fmt.Println(line)
	}
	return nil
}

func runHistory(cCtx *cli.Context) error {
	store, err := state.Open(cCtx.String("state-db"))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(20)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no deployments recorded")
		return nil
	}
	for _, run := range runs {
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-8s started=%s finished=%s\n",
			run.ID, run.Status, run.StartedAt.Format(time.RFC3339), finished)
	}
	return nil
}
