package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "cantools",
		Usage:   "decode CAN bus capture streams and publish decoded signals",
		Version: Version,
		Commands: []*cli.Command{
			decodeCommand(),
			versionCommand(),
		},
	}

	// cli.Exit errors are handled inside Run; anything else is unexpected.
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cantools: %v\n", err)
		os.Exit(1)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print the cantools version",
		Action: func(c *cli.Context) error {
			fmt.Fprintln(c.App.Writer, c.App.Version)
			return nil
		},
	}
}
