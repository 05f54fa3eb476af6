package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/urfave/cli/v3"
)

// historyWatchCommand streams history changes from the server as NDJSON.
//
// Typical usage:
//
//	quack history watch
//	quack history watch --all --pretty
//	quack history watch | jq -r '.event.query'
//
// By default only change events are printed; --all includes the init message
// carrying the full history sent on every (re)connect.
//
// The command reconnects with exponential backoff when the server is not yet
// available or the connection drops. It only exits when the context is
// cancelled, or on the first failure when --no-retry is set.
func historyWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream history changes (NDJSON) from the server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Also print the init message with the full history",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON instead of raw single-line",
			},
			&cli.BoolFlag{
				Name:  "no-retry",
				Usage: "Do not retry on failures; exit on first connection error",
			},
			&cli.DurationFlag{
				Name:  "initial-backoff",
				Usage: "Initial reconnect backoff",
				Value: 1 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "max-backoff",
				Usage: "Maximum reconnect backoff",
				Value: 30 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c, cfg)
			if err != nil {
				return err
			}

			return tailHistory(ctx, cl, watchOptions{
				includeAll:     c.Bool("all"),
				pretty:         c.Bool("pretty"),
				noRetry:        c.Bool("no-retry"),
				initialBackoff: c.Duration("initial-backoff"),
				maxBackoff:     c.Duration("max-backoff"),
				stdout:         os.Stdout,
				stderr:         os.Stderr,
			})
		},
	}
}

type historyWatcher interface {
	WatchHistory(ctx context.Context, fn func(realtime.Message)) error
}

type watchOptions struct {
	includeAll     bool
	pretty         bool
	noRetry        bool
	initialBackoff time.Duration
	maxBackoff     time.Duration
	stdout         io.Writer
	stderr         io.Writer
}

func tailHistory(ctx context.Context, w historyWatcher, opts watchOptions) error {
	logf := func(format string, args ...any) {
		_, _ = fmt.Fprintf(opts.stderr, "Watch: "+format+"\n", args...)
	}
	return followHistory(ctx, w, opts, logf, func(msg realtime.Message) {
		if msg.Type == realtime.TypeInit && !opts.includeAll {
			return
		}
		printMessage(opts.stdout, msg, opts.pretty)
	})
}

// followHistory keeps a history stream open, calling fn for every message.
// A connection counts as established once its init message arrives, which
// resets the backoff.
func followHistory(ctx context.Context, w historyWatcher, opts watchOptions, logf func(string, ...any), fn func(realtime.Message)) error {
	if opts.initialBackoff <= 0 {
		opts.initialBackoff = time.Second
	}
	if opts.maxBackoff < opts.initialBackoff {
		opts.maxBackoff = 30 * time.Second
	}

	logf("connecting")
	backoff := opts.initialBackoff

	for {
		connected := false
		err := w.WatchHistory(ctx, func(msg realtime.Message) {
			if !connected {
				connected = true
				backoff = opts.initialBackoff
				logf("connected (backoff reset)")
			}
			fn(msg)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if opts.noRetry {
			return err
		}

		if connected {
			logf("stream error (%v), reconnecting...", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
			continue
		}

		logf("dial failed (%v), retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > opts.maxBackoff {
			backoff = opts.maxBackoff
		}
	}
}

func printMessage(out io.Writer, msg realtime.Message, pretty bool) {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(msg, "", "  ")
	} else {
		b, err = json.Marshal(msg)
	}
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(out, string(b))
}
