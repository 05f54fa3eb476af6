package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/urfave/cli/v3"
)

// HistoryCommand creates the history command and its subcommands
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and edit the search history",
		Flags: []cli.Flag{serverFlag()},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List past searches, most recent first",
				Action: func(ctx context.Context, c *cli.Command) error {
					cl, err := historyClient(c)
					if err != nil {
						return err
					}
					entries, err := cl.History(ctx)
					if err != nil {
						return fmt.Errorf("fetching history: %w", err)
					}
					fmt.Print(renderHistory(entries, time.Now()))
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "Remove the entry at the given index",
				ArgsUsage: "<index>",
				Action: func(ctx context.Context, c *cli.Command) error {
					index, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("index must be an integer: %q", c.Args().First())
					}
					cl, err := historyClient(c)
					if err != nil {
						return err
					}
					if err := cl.RemoveHistoryEntry(ctx, index); err != nil {
						return fmt.Errorf("removing entry %d: %w", index, err)
					}
					fmt.Printf("Removed history entry %d\n", index)
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every history entry",
				Action: func(ctx context.Context, c *cli.Command) error {
					cl, err := historyClient(c)
					if err != nil {
						return err
					}
					if err := cl.ClearHistory(ctx); err != nil {
						return fmt.Errorf("clearing history: %w", err)
					}
					fmt.Println("History cleared")
					return nil
				},
			},
			historyWatchCommand(),
		},
	}
}

type historyBackend interface {
	History(ctx context.Context) ([]core.HistoryEntry, error)
	RemoveHistoryEntry(ctx context.Context, index int) error
	ClearHistory(ctx context.Context) error
}

func historyClient(c *cli.Command) (historyBackend, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	cl, err := newClient(c, cfg)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func renderHistory(entries []core.HistoryEntry, now time.Time) string {
	if len(entries) == 0 {
		return metaStyle.Render("No searches yet.") + "\n"
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%3d  %-40s %s\n", i, e.Query, metaStyle.Render(relativeTime(now, e.Timestamp)))
	}
	return b.String()
}

func relativeTime(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}
