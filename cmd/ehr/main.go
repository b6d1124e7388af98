package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DavidGamba/go-getoptions"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nhle/ehr-terminal/internal/api"
	"github.com/nhle/ehr-terminal/internal/app"
	"github.com/nhle/ehr-terminal/internal/credential"
	"github.com/nhle/ehr-terminal/internal/dashboard"
	"github.com/nhle/ehr-terminal/internal/model"
	"github.com/nhle/ehr-terminal/internal/reconcile"
	"github.com/nhle/ehr-terminal/internal/session"
	"github.com/nhle/ehr-terminal/internal/store"
	appsync "github.com/nhle/ehr-terminal/internal/sync"
)

// commandLineOptionValues holds the values passed on the command line.
type commandLineOptionValues struct {
	Config   string
	APIURL   string
	LogLevel string
	Route    string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", model.DefaultConfigPath(),
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.StringVar(&optionValues.APIURL, "api-url", "",
		opt.Description("override api.base_url"))
	opt.StringVar(&optionValues.LogLevel, "log-level", "",
		opt.Description("override log.level (debug, info, warn, error)"))
	opt.StringVar(&optionValues.Route, "route", "",
		opt.Description("the route to open first, e.g. /doctor-dashboard/messages"))

	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

// newLogger writes JSON lines to the configured file. The terminal
// belongs to the TUI.
func newLogger(cfg model.LogConfig) (*logrus.Logger, *os.File, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}

// openDurable returns the slot storage the session store persists to.
// With the keyring backend only the token leaves the database.
func openDurable(cfg model.StorageConfig, st *store.SQLiteStore) (store.Durable, error) {
	if cfg.TokenBackend != model.TokenBackendKeyring {
		return st, nil
	}
	ring, err := credential.Open(filepath.Dir(cfg.DBPath))
	if err != nil {
		return nil, err
	}
	return credential.NewSplitDurable(ring, st), nil
}

func run(opts *commandLineOptionValues) error {
	cfg, err := model.LoadConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.APIURL != "" {
		cfg.API.BaseURL = opts.APIURL
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log, logFile, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logFile.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	durable, err := openDurable(cfg.Storage, st)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.API, log.WithField("component", "api"))
	sess := session.New(context.Background(), durable, client, log.WithField("component", "session"))
	client.SetTokenSource(sess)

	rec := reconcile.New(st, client, log.WithField("component", "reconcile"))
	agg := dashboard.New(client, time.Duration(cfg.API.TimeoutSec)*time.Second, log.WithField("component", "dashboard"))
	poller := appsync.New(st, client, rec, sess.Current,
		time.Duration(cfg.Display.PollIntervalSec)*time.Second, log.WithField("component", "sync"))
	defer poller.Stop()

	route := opts.Route
	if route == "" {
		if current, ok := sess.Current(); ok {
			route = current.Role.DashboardPath()
		}
	}

	log.WithFields(logrus.Fields{
		"api":           cfg.API.BaseURL,
		"token_backend": cfg.Storage.TokenBackend,
		"route":         route,
	}).Info("starting")

	m := app.New(app.Deps{
		Session:    sess,
		Backend:    client,
		Reconciler: rec,
		Aggregator: agg,
		Poller:     poller,
		Log:        log,
		Config:     cfg,
		ConfigPath: opts.Config,
	}, route)

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

func main() {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	optionValues := parseCommandLine()

	if err := run(optionValues); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
