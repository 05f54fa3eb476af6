package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/quack/pkg/version"
	"github.com/urfave/cli/v3"
)

// VersionCommand creates the version command
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "short",
				Usage: "Print only the version number",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("short") {
				fmt.Println(version.APIVersion())
				return nil
			}
			fmt.Println(version.BuildVersion())
			return nil
		},
	}
}
