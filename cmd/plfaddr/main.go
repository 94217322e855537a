// plfaddr extracts PLC block reference addresses from a Siemens TIA Portal
// project container (.plf) and writes them to a text export.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/plckit/plfaddr"
	"github.com/plckit/plfaddr/address"
)

func main() {
	app := &cli.App{
		Name:      "plfaddr",
		Usage:     "extract PLC block reference addresses from a TIA Portal .plf container",
		ArgsUsage: "PLF_FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "export file path (default: export.txt beside the input)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log per-record diagnostics",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "plfaddr: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return fmt.Errorf("missing PLF_FILE argument")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if ctx.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}

	addrs, err := plfaddr.ParseFile(path, plfaddr.WithLogger(logger))
	if err != nil {
		return err
	}

	out := ctx.String("output")
	if out == "" {
		out = filepath.Join(filepath.Dir(path), "export.txt")
	}
	if err := address.WriteFile(out, addrs); err != nil {
		return err
	}

	logger.Debugf("wrote %d addresses to %s", len(addrs), out)

	return nil
}
