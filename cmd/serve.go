package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rubiojr/quack/pkg/api"
	"github.com/rubiojr/quack/pkg/config"
	"github.com/rubiojr/quack/pkg/history"
	"github.com/rubiojr/quack/pkg/log"
	"github.com/rubiojr/quack/pkg/provider"
	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/rubiojr/quack/pkg/search"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the search API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind to (overrides server.host)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides server.port)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if h := c.String("host"); h != "" {
				cfg.Server.Host = h
			}
			if p := c.String("port"); p != "" {
				cfg.Server.Port = p
			}
			return serve(ctx, c.String("config"), cfg, c.Bool("debug"))
		},
	}
}

// newProvider builds the DuckDuckGo adapter behind a circuit breaker.
func newProvider(cfg *config.Config) provider.Provider {
	ddg := provider.NewDuckDuckGo(provider.DuckDuckGoConfig{
		BaseURL:           cfg.Provider.BaseURL,
		Timeout:           cfg.Provider.Timeout.Duration,
		RequestsPerSecond: cfg.Provider.Rate(),
		Burst:             cfg.Provider.Burst,
	})
	return provider.NewBreaker(ddg, provider.BreakerConfig{
		MaxFailures: cfg.Provider.BreakerMaxFailures,
		Timeout:     cfg.Provider.BreakerTimeout.Duration,
	})
}

func serve(ctx context.Context, configPath string, cfg *config.Config, debugFlag bool) error {
	logger := log.ForService("serve")

	hub := realtime.NewHub(0)
	store, err := history.Open(cfg.HistoryPath(), history.WithObserver(hub.Observe))
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}

	svc := search.NewService(newProvider(cfg), store)
	apiServer := api.NewServer(svc, hub)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting API server on http://%s", cfg.Server.Addr())
		logger.Infof("History file: %s", store.Path())
		logger.Infof("Available endpoints:")
		logger.Infof("  GET    /search?q=")
		logger.Infof("  POST   /search")
		logger.Infof("  GET    /search/history")
		logger.Infof("  DELETE /search/history/{index}")
		logger.Infof("  DELETE /search/history")
		logger.Infof("  GET    /search/history/ws")
		logger.Infof("  GET    /health")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(configPath); err != nil {
			logger.Debugf("not watching config file %s: %v", configPath, err)
		} else {
			logger.Infof("Watching config file for changes: %s", configPath)
		}
		events, watchErrs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
			return shutdown(server, svc, logger)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Infof("Received SIGHUP, reloading configuration...")
				reloadLogLevel(configPath, debugFlag, logger)
				continue
			}
			return shutdown(server, svc, logger)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Editors replace files atomically; re-add the watch once the
			// new file exists.
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			logger.Infof("Config file changed (%s), reloading configuration...", event.Op)
			reloadLogLevel(configPath, debugFlag, logger)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

// reloadLogLevel re-reads the config and applies its debug setting. Other
// settings need a restart.
func reloadLogLevel(configPath string, debugFlag bool, logger *log.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Errorf("Failed to reload configuration: %v", err)
		return
	}
	log.SetGlobalDebug(debugFlag || cfg.Debug)
	logger.Infof("Configuration reloaded (debug=%t)", log.GlobalDebug())
}

func shutdown(server *http.Server, svc *search.Service, logger *log.Logger) error {
	logger.Infof("Shutting down API server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	svc.Wait()
	return err
}
