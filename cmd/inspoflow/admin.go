package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/backup"
	"github.com/robertmeta/inspoflow/config"
	"github.com/robertmeta/inspoflow/feed"
	"github.com/robertmeta/inspoflow/model"
	"github.com/robertmeta/inspoflow/server"
)

// createOutput returns stdout for an empty path, or the created file.
func createOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

func exportBackup(c *cli.Context, e *env) error {
	now := time.Now()
	outputPath := c.String("output")
	if outputPath != "" {
		if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
			outputPath = filepath.Join(outputPath, backup.FileName(now))
		}
	}

	writer, closeFn, err := createOutput(outputPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
	}
	defer closeFn()

	personas := e.personas.List()
	items := e.feed.All()
	if err := backup.Export(writer, personas, items, now); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to export: %v", err), ExitDataError)
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success":    true,
			"file":       outputPath,
			"personas":   len(personas),
			"feed_items": len(items),
		})
	}
	return nil
}

func importBackup(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow import <backup-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open backup file: %v", err), ExitDataError)
	}
	defer file.Close()

	doc, err := backup.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Import failed: %v", err), ExitDataError)
	}

	res := backup.Apply(doc, e.personas, e.feed)
	return outputJSON(map[string]interface{}{
		"success": true,
		"result":  res,
	})
}

func writeRSS(c *cli.Context, e *env) error {
	title := "InspoFlow saved"
	items := e.feed.Saved()
	if c.Bool("all") {
		title = "InspoFlow"
		items = e.feed.All()
	}

	outputPath := c.String("output")
	writer, closeFn, err := createOutput(outputPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to create output file: %v", err), ExitDataError)
	}
	defer closeFn()

	if err := feed.Render(writer, title, items, time.Now()); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate RSS: %v", err), ExitDataError)
	}

	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(items),
		})
	}
	return nil
}

func ingestFeed(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow ingest <url> --persona <persona-id>", ExitUsageError)
	}

	url := c.Args().Get(0)
	p, ok := e.personas.Get(c.String("persona"))
	if !ok {
		return cli.Exit("Persona not found", ExitDataError)
	}

	entries, err := feed.NewFetcher().Fetch(url, p)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
	}

	// Entries already ingested keep their local state
	fresh := make([]model.FeedItem, 0, len(entries))
	for _, entry := range entries {
		if e.feed.Has(entry.ID) {
			continue
		}
		fresh = append(fresh, entry)
	}
	e.feed.AddBatch(fresh)

	return outputJSON(map[string]interface{}{
		"success":       true,
		"url":           url,
		"new_items":     len(fresh),
		"total_entries": len(entries),
	})
}

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change the API key and model",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show current settings (API key masked)",
				Action: withEnv(showSettings),
			},
			{
				Name:  "set",
				Usage: "Persist the API key and/or model name",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api-key", Usage: "Gemini API key"},
					&cli.StringFlag{Name: "model", Usage: "Model name (default: " + config.DefaultModel + ")"},
				},
				Action: withEnv(setSettings),
			},
		},
	}
}

func showSettings(c *cli.Context, e *env) error {
	return outputJSON(map[string]interface{}{
		"api_key_set":    e.cfg.RequireAPIKey() == nil,
		"api_key":        e.cfg.MaskedAPIKey(),
		"model":          e.cfg.Model,
		"config_file":    e.viper.ConfigFileUsed(),
		"storage_driver": e.cfg.Storage.Driver,
		"storage_path":   e.cfg.Storage.Path,
		"batch_size":     e.cfg.Batch.Size,
	})
}

func setSettings(c *cli.Context, e *env) error {
	apiKey := c.String("api-key")
	modelName := c.String("model")
	if apiKey == "" && modelName == "" {
		return cli.Exit("Usage: inspoflow settings set [--api-key <key>] [--model <name>]", ExitUsageError)
	}

	path, err := config.SaveSettings(e.viper, c.String("config"), apiKey, modelName)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	return outputJSON(map[string]interface{}{
		"success": true,
		"file":    path,
	})
}

func serve(c *cli.Context, e *env) error {
	addr := e.cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	opts := []server.Option{
		server.WithLogger(e.logger.Named("server")),
		server.WithBatchSize(e.cfg.Batch.Size),
	}
	client, err := e.client()
	if err != nil {
		e.logger.Warn("generation disabled", zap.Error(err))
	} else {
		opts = append(opts, server.WithBatcher(e.batcher(client)), server.WithPolisher(client))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(e.personas, e.feed, opts...).Run(ctx, addr); err != nil {
		return cli.Exit(fmt.Sprintf("Server error: %v", err), ExitGeneralError)
	}
	return nil
}
