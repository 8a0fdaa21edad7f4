package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/robertmeta/inspoflow/feedcontent"
	"github.com/robertmeta/inspoflow/generate"
	"github.com/robertmeta/inspoflow/model"
)

func generateItems(c *cli.Context, e *env) error {
	client, err := e.client()
	if err != nil {
		return configExit(err)
	}

	count := e.cfg.Batch.Size
	if c.IsSet("count") {
		count = c.Int("count")
	}
	if count <= 0 {
		return cli.Exit("count must be positive", ExitUsageError)
	}
	if e.personas.Len() == 0 {
		return cli.Exit("No personas to generate from; add one with `inspoflow personas add`", ExitDataError)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := e.batcher(client).Generate(ctx, count)
	items := make([]model.FeedItem, 0, len(res.IDs))
	for _, id := range res.IDs {
		if item, ok := e.feed.Get(id); ok {
			items = append(items, item)
		}
	}

	return outputJSON(map[string]interface{}{
		"generated": len(res.IDs),
		"failed":    res.Failed,
		"items":     items,
	})
}

func listItems(c *cli.Context, e *env) error {
	opts, err := feedcontent.BuildQueryOptions(
		c.Int("limit"),
		c.Int("offset"),
		c.Bool("saved"),
		c.Bool("liked"),
		c.String("since"),
		"",
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid query options: %v", err), ExitUsageError)
	}

	items := e.feed.Query(opts)
	return outputJSON(map[string]interface{}{
		"count":  len(items),
		"limit":  opts.Limit,
		"offset": opts.Offset,
		"items":  items,
	})
}

func searchItems(c *cli.Context, e *env) error {
	query := strings.Join(c.Args().Slice(), " ")
	items := e.feed.Search(query)
	return outputJSON(map[string]interface{}{
		"query": query,
		"count": len(items),
		"items": items,
	})
}

func savedItems(c *cli.Context, e *env) error {
	return outputJSON(e.feed.Saved())
}

func showItem(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow show <item-id>", ExitUsageError)
	}
	item, ok := e.feed.Get(c.Args().Get(0))
	if !ok {
		return cli.Exit("Item not found", ExitDataError)
	}
	return outputJSON(item)
}

func likeItem(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow like <item-id>", ExitUsageError)
	}
	id := c.Args().Get(0)
	liked, ok := e.feed.ToggleLike(id)
	if !ok {
		return cli.Exit("Item not found", ExitDataError)
	}
	return outputJSON(map[string]interface{}{"id": id, "isLiked": liked})
}

func saveItem(c *cli.Context, e *env) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: inspoflow save <item-id>", ExitUsageError)
	}
	id := c.Args().Get(0)
	saved, ok := e.feed.ToggleSave(id)
	if !ok {
		return cli.Exit("Item not found", ExitDataError)
	}
	return outputJSON(map[string]interface{}{"id": id, "isSaved": saved})
}

func continueItem(c *cli.Context, e *env) error {
	if c.NArg() < 2 {
		return cli.Exit("Usage: inspoflow continue <item-id> <message>", ExitUsageError)
	}
	message := strings.Join(c.Args().Tail(), " ")
	if strings.TrimSpace(message) == "" {
		return cli.Exit("Message is empty", ExitUsageError)
	}

	client, err := e.client()
	if err != nil {
		return configExit(err)
	}

	item, err := e.batcher(client).Continue(c.Context, c.Args().Get(0), message)
	switch {
	case errors.Is(err, feedcontent.ErrNotFound):
		return cli.Exit("Item not found", ExitDataError)
	case errors.Is(err, generate.ErrStillLoading):
		return cli.Exit(err.Error(), ExitDataError)
	case err != nil:
		return cli.Exit(err.Error(), ExitGeneralError)
	}

	reply := ""
	if n := len(item.History); n > 0 {
		reply = item.History[n-1].Text()
	}
	return outputJSON(map[string]interface{}{
		"id":      item.ID,
		"reply":   reply,
		"history": item.History,
	})
}
