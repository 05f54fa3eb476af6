package cmd

import (
	"fmt"

	"github.com/rubiojr/quack/pkg/client"
	"github.com/rubiojr/quack/pkg/config"
	"github.com/rubiojr/quack/pkg/log"
	"github.com/urfave/cli/v3"
)

// loadConfig loads the configuration named by the global --config flag and
// applies its debug setting on top of --debug.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Debug {
		log.SetGlobalDebug(true)
	}
	return cfg, nil
}

// newClient creates an API client for the configured server. The --server
// flag, when present, overrides the configured address.
func newClient(c *cli.Command, cfg *config.Config) (*client.Client, error) {
	baseURL := cfg.Client.BaseURL
	if s := c.String("server"); s != "" {
		baseURL = s
	}
	cl, err := client.New(baseURL, client.WithTimeout(cfg.Client.Timeout.Duration))
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	return cl, nil
}

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "server",
		Usage: "Server base URL (overrides client.base_url)",
	}
}
