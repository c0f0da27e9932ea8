// Command ccnsyncd runs a standalone ccnsync engine: an in-memory or
// goleveldb-backed Storage, a websocket Transport dialing/accepting a
// fixed peer set, and a single slice configured from the command line
// or a TOML config file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/ccnxgo/ccnsync/ccnsync"
	"github.com/ccnxgo/ccnsync/ccnsync/memstore"
	"github.com/ccnxgo/ccnsync/ccnsync/wiretransport"
	"github.com/ccnxgo/ccnsync/common/mclock"
	"github.com/ccnxgo/ccnsync/log"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML config file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for durable goleveldb storage; empty uses an in-memory store",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Value: ":7940",
		Usage: "address to accept inbound peer websocket connections on",
	}
	peersFlag = &cli.StringSliceFlag{
		Name:  "peer",
		Usage: "ws://host:port peer to dial; may be repeated",
	}
	topoFlag = &cli.StringFlag{
		Name:  "topo",
		Value: "/local/sync",
		Usage: "slice topological prefix",
	}
	namingFlag = &cli.StringFlag{
		Name:  "naming",
		Value: "/local/data",
		Usage: "slice naming prefix",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity, 0 (crit) through 5 (trace); not applied: every level is logged",
	}
)

func main() {
	app := &cli.App{
		Name:  "ccnsyncd",
		Usage: "run a ccnsync Sync engine node",
		Flags: []cli.Flag{configFlag, dataDirFlag, listenFlag, peersFlag, topoFlag, namingFlag, verbosityFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := log.New()
	logger.SetHandler(log.StreamHandler(log.ColorableWriter(os.Stderr), log.TerminalFormat(true)))

	cfg := defaultCcnsyncdConfig()
	if path := c.String("config"); path != "" {
		if err := loadConfig(path, &cfg); err != nil {
			return fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	if c.IsSet("datadir") {
		cfg.DataDir = c.String("datadir")
	}
	if c.IsSet("listen") {
		cfg.ListenAddr = c.String("listen")
	}
	if peers := c.StringSlice("peer"); len(peers) > 0 {
		cfg.Peers = peers
	}
	if c.IsSet("topo") {
		cfg.TopoPrefix = c.String("topo")
	}
	if c.IsSet("naming") {
		cfg.NamingPrefix = c.String("naming")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	transport := wiretransport.New(logger)
	for _, peer := range cfg.Peers {
		if err := transport.Connect(ctx, peer); err != nil {
			logger.Warn("peer dial failed", "peer", peer, "err", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/sync", transport.Handler())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listener failed", "err", err)
		}
	}()

	localhost := ccnsync.ParseName(cfg.Localhost)
	engineCfg := cfg.Engine.toEngineConfig()

	var addName ccnsync.AddNameFunc
	var storage ccnsync.Storage
	onAdd := func(name ccnsync.Name, acc ccnsync.Accession) {
		if addName != nil {
			addName(name, nil, acc)
		}
	}
	if cfg.DataDir != "" {
		ls, err := memstore.OpenLevelStore(cfg.DataDir, onAdd)
		if err != nil {
			return fmt.Errorf("opening goleveldb store: %w", err)
		}
		defer ls.Close()
		storage = ls
	} else {
		storage = memstore.New(onAdd)
	}

	engine := ccnsync.NewEngine(engineCfg, storage, transport, mclock.System{}, logger, localhost)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	addName = func(name ccnsync.Name, item ccnsync.NameItem, _ ccnsync.Accession) {
		if err := engine.AddName(name, item); err != nil {
			logger.Warn("AddName failed", "name", name.String(), "err", err)
		}
	}

	sliceCfg := ccnsync.SliceConfig{
		Version:      1,
		TopoPrefix:   ccnsync.ParseName(cfg.TopoPrefix),
		NamingPrefix: ccnsync.ParseName(cfg.NamingPrefix),
	}
	if _, err := engine.CreateSlice(sliceCfg); err != nil {
		return fmt.Errorf("creating slice: %w", err)
	}

	logger.Info("ccnsyncd running", "listen", cfg.ListenAddr, "peers", len(cfg.Peers), "naming", cfg.NamingPrefix)
	<-ctx.Done()
	logger.Info("shutting down")
	_ = srv.Close()
	return nil
}
