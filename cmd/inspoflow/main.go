package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/config"
	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/generate"
	"github.com/robertmeta/inspoflow/logging"
	"github.com/robertmeta/inspoflow/persona"
	"github.com/robertmeta/inspoflow/store"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := &cli.App{
		Name:    "inspoflow",
		Usage:   "Persona-driven inspiration feed",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: ./config.yaml or " + config.DefaultPath() + ")",
				EnvVars: []string{"INSPOFLOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Database file path (overrides storage.path)",
				EnvVars: []string{"INSPOFLOW_DB"},
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Storage driver: sqlite, bolt or memory (overrides storage.driver)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			personasCommand(),
			{
				Name:  "generate",
				Usage: "Generate a batch of feed items from random personas",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "Number of items (default: batch.size)",
					},
				},
				Action: withEnv(generateItems),
			},
			{
				Name:  "list",
				Usage: "List feed items",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   50,
						Usage:   "Maximum number of items to return",
					},
					&cli.IntFlag{
						Name:    "offset",
						Aliases: []string{"o"},
						Value:   0,
						Usage:   "Offset for pagination",
					},
					&cli.BoolFlag{
						Name:  "saved",
						Usage: "Show only saved items",
					},
					&cli.BoolFlag{
						Name:  "liked",
						Usage: "Show only liked items",
					},
					&cli.StringFlag{
						Name:    "since",
						Aliases: []string{"s"},
						Usage:   "Show items since duration (e.g., 12h, 7d, 2w, 3m, 1y)",
					},
				},
				Action: withEnv(listItems),
			},
			{
				Name:      "search",
				Usage:     "Search feed items by content, persona name or bio",
				ArgsUsage: "<query>",
				Action:    withEnv(searchItems),
			},
			{
				Name:   "saved",
				Usage:  "List saved items",
				Action: withEnv(savedItems),
			},
			{
				Name:      "show",
				Usage:     "Show feed item details",
				ArgsUsage: "<item-id>",
				Action:    withEnv(showItem),
			},
			{
				Name:      "like",
				Usage:     "Toggle the liked flag of an item",
				ArgsUsage: "<item-id>",
				Action:    withEnv(likeItem),
			},
			{
				Name:      "save",
				Usage:     "Toggle the saved flag of an item",
				ArgsUsage: "<item-id>",
				Action:    withEnv(saveItem),
			},
			{
				Name:      "continue",
				Usage:     "Continue the conversation about an item",
				ArgsUsage: "<item-id> <message>",
				Action:    withEnv(continueItem),
			},
			{
				Name:  "export",
				Usage: "Export personas and feed items to a backup file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout; a directory gets the dated backup name)",
					},
				},
				Action: withEnv(exportBackup),
			},
			{
				Name:      "import",
				Usage:     "Import personas and feed items from a backup file",
				ArgsUsage: "<backup-file>",
				Action:    withEnv(importBackup),
			},
			{
				Name:  "rss",
				Usage: "Write saved items as an RSS feed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include every item, not just saved ones",
					},
				},
				Action: withEnv(writeRSS),
			},
			{
				Name:      "ingest",
				Usage:     "Add the entries of an external RSS/Atom feed as items of a persona",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "persona",
						Aliases:  []string{"p"},
						Usage:    "Persona id the entries are attributed to",
						Required: true,
					},
				},
				Action: withEnv(ingestFeed),
			},
			settingsCommand(),
			{
				Name:  "serve",
				Usage: "Serve the JSON API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default: server.addr)",
					},
				},
				Action: withEnv(serve),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

// env is the state shared by every command.
type env struct {
	cfg      *config.Config
	viper    *viper.Viper
	logger   *zap.Logger
	repo     store.Repository
	personas *persona.Store
	feed     *feedcontent.Store
}

func (e *env) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// client builds the remote generation client, failing when no API key is
// configured.
func (e *env) client() (*generate.Client, error) {
	return generate.NewClient(e.cfg, generate.WithLogger(e.logger))
}

func (e *env) batcher(gen generate.Generator) *generate.Batcher {
	return generate.NewBatcher(gen, e.personas, e.feed,
		generate.WithConcurrency(e.cfg.Batch.Concurrency),
		generate.WithBatchLogger(e.logger))
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, v, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		cfg.Storage.Path = c.String("db")
	}
	if c.IsSet("driver") {
		cfg.Storage.Driver = c.String("driver")
	}
	if c.Bool("debug") {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Driver != store.DriverMemory {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	repo, err := store.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("storage opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("path", cfg.Storage.Path))

	return &env{
		cfg:      cfg,
		viper:    v,
		logger:   logger,
		repo:     repo,
		personas: persona.New(repo, logger.Named("personas")),
		feed:     feedcontent.New(repo, logger.Named("feed")),
	}, nil
}

// withEnv opens the stores for the duration of a command.
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := openEnv(c)
		if err != nil {
			return cli.Exit(err.Error(), ExitDataError)
		}
		defer e.Close()
		return fn(c, e)
	}
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
