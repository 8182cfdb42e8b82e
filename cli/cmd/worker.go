package cmd

import (
	"fmt"
	"net"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/forward"
	"github.com/pithecene-io/coalesce/log"
	"github.com/pithecene-io/coalesce/metrics"
)

// WorkerCommand returns the worker command: listen for the initiator's
// hello, join the mesh, and serve local shards until shutdown.
func WorkerCommand() *cli.Command {
	return &cli.Command{
		Name:      "worker",
		Usage:     "Listen on a port and await the initiator",
		ArgsUsage: "<port>",
		Flags:     sharedFlags(),
		Action:    runWorker,
	}
}

func runWorker(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("worker: exactly one argument expected: the listen port", 2)
	}
	port := c.Args().First()

	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker: %v", err), 2)
	}

	// Peer id is unknown until the hello arrives; log as 0 during accept
	// and rely on the bootstrap log line for the assigned id.
	logger, err := log.New(0, cfg.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker: %v", err), 2)
	}
	defer func() { _ = logger.Sync() }()

	lst, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker: listen: %v", err), 1)
	}
	logger.Info("worker listening", zap.String("addr", lst.Addr().String()))

	dep, err := forward.Serve(forward.Config{
		NewStore:  storeFactory(cfg),
		Logger:    logger,
		Collector: metrics.NewCollector(0, backendName(cfg)),
	}, lst)
	if err != nil {
		return cli.Exit(fmt.Sprintf("worker: %v", err), 1)
	}

	dep.Wait()
	if err := dep.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("worker: teardown: %v", err), 1)
	}
	logger.Info("worker exiting", zap.Uint16("self_id", dep.SelfID))
	return nil
}
