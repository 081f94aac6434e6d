// Command atomixd runs a standalone messaging node: it binds the
// configured listeners, joins the named cluster, and serves until
// interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/sensiasoft/atomix/pkg/transport"
)

var configPathFlag = &cli.StringFlag{
	Name:    "config-path",
	Aliases: []string{"c"},
	Usage:   "path to a YAML config file",
}

var debugFlag = &cli.BoolFlag{
	Name:    "debug",
	Aliases: []string{"d"},
	Usage:   "enable debug logging",
}

func main() {
	app := &cli.App{
		Name:  "atomixd",
		Usage: "run an atomix messaging node",
		Commands: []*cli.Command{
			{
				Name:   "node",
				Usage:  "start a node and serve until interrupted",
				Action: startNode,
				Flags:  []cli.Flag{configPathFlag, debugFlag},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startNode(c *cli.Context) error {
	log, err := newLogger(c.Bool(debugFlag.Name))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer log.Sync()

	cfg := transport.DefaultConfig()
	if path := c.String(configPathFlag.Name); path != "" {
		cfg, err = transport.LoadConfig(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	svc := transport.New(cfg, log)
	if err := svc.Start(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	log.Info("node started", zap.String("address", svc.Address().String()), zap.String("cluster", cfg.ClusterName))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	return svc.Stop()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
