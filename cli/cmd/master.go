package cmd

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pithecene-io/coalesce/cli/config"
	"github.com/pithecene-io/coalesce/forward"
	"github.com/pithecene-io/coalesce/log"
	"github.com/pithecene-io/coalesce/metrics"
	"github.com/pithecene-io/coalesce/types"
)

// MasterCommand returns the master command: bootstrap the mesh as peer 0,
// optionally run an allocation load, then shut the cluster down.
func MasterCommand() *cli.Command {
	return &cli.Command{
		Name:      "master",
		Usage:     "Start driver 0 and connect to the listed worker peers",
		ArgsUsage: "[peer_ip:port ...]",
		Flags: append(sharedFlags(),
			&cli.UintFlag{
				Name:  "shards-per-peer",
				Usage: "Shards hosted by every peer",
				Value: 4,
			},
			&cli.IntFlag{
				Name:  "batch-len",
				Usage: "Outbound batch hand-off threshold (0 = flush-only)",
			},
			&cli.Uint64Flag{
				Name:  "nodes",
				Usage: "Allocate this many nodes round-robin before shutdown",
			},
		),
		Action: runMaster,
	}
}

func runMaster(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("master: %v", err), 2)
	}
	if cfg.ShardsPerPeer == 0 {
		cfg.ShardsPerPeer = 4
	}

	peers, err := masterPeers(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("master: %v", err), 2)
	}

	logger, err := log.New(0, cfg.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("master: %v", err), 2)
	}
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector(0, backendName(cfg))

	dep, err := forward.Connect(forward.Config{
		ShardsPerPeer: cfg.ShardsPerPeer,
		NewStore:      storeFactory(cfg),
		Logger:        logger,
		Collector:     collector,
	}, peers)
	if err != nil {
		return cli.Exit(fmt.Sprintf("master: %v", err), 1)
	}

	if n := c.Uint64("nodes"); n > 0 {
		if err := allocateNodes(dep, cfg, n, logger); err != nil {
			return cli.Exit(fmt.Sprintf("master: %v", err), 1)
		}
	}

	dep.Driver.ShutdownAllAndWait()
	dep.Wait()
	if err := dep.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("master: teardown: %v", err), 1)
	}

	snap := collector.Snapshot()
	logger.Info("master exiting",
		zap.Int64("messages_processed", snap.MessagesProcessed),
		zap.Int64("nodes_added", snap.NodesAdded),
		zap.Int64("frames_sent", snap.FramesSent),
		zap.Int64("frames_received", snap.FramesReceived))
	return nil
}

func masterPeers(c *cli.Context, cfg *config.Config) ([]netip.AddrPort, error) {
	if c.Args().Len() > 0 {
		addrs := make([]netip.AddrPort, 0, c.Args().Len())
		for _, raw := range c.Args().Slice() {
			addr, err := netip.ParseAddrPort(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid peer address %q: %w", raw, err)
			}
			addrs = append(addrs, addr)
		}
		return addrs, nil
	}
	return cfg.PeerAddrs()
}

// allocateNodes drives a bulk allocation across every shard and waits for
// all completions, with a second goroutine draining the stream the whole
// time.
func allocateNodes(dep *forward.Deployment, cfg *config.Config, n uint64, logger *zap.Logger) error {
	d := dep.Driver
	if cfg.BatchLen != 0 {
		d.SetBatchLen(cfg.BatchLen)
	} else {
		d.SetBatchLen(0) // bulk load: one hand-off per shard at flush
	}

	numShards := uint64(dep.System.NumShards())
	errs := make(chan error, 1)
	go func() {
		var done uint64
		for done < n {
			batch, ok := d.Recv()
			if !ok {
				errs <- fmt.Errorf("completion stream closed after %d of %d allocations", done, n)
				return
			}
			for _, msg := range batch {
				if msg.Op != types.OpAddNodeDone {
					errs <- fmt.Errorf("unexpected completion op %d during load", msg.Op)
					return
				}
				done++
			}
		}
		errs <- nil
	}()

	start := time.Now()
	for id := uint64(0); id < n; id++ {
		d.AddNode(types.NewReqID(0, id), uint16(id%numShards))
	}
	d.Flush()
	queued := time.Since(start)

	if err := <-errs; err != nil {
		return err
	}
	logger.Info("allocation load complete",
		zap.Uint64("nodes", n),
		zap.Duration("queued_in", queued),
		zap.Duration("total", time.Since(start)))
	return nil
}

func backendName(cfg *config.Config) string {
	if cfg.Storage.Backend == "" {
		return "ram"
	}
	return cfg.Storage.Backend
}
