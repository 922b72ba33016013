package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gobridgecore/EVMRPC"
	"gobridgecore/compressor"
	"gobridgecore/config"
	"gobridgecore/events"
	"gobridgecore/messenger"
	"gobridgecore/metrics"
	"gobridgecore/optimizer"
	"gobridgecore/redis"
	"gobridgecore/registry"
	"gobridgecore/signature"
	"gobridgecore/types"
	"gobridgecore/workers"
	"gobridgecore/workers/handlers"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const pendingScanInterval = 30 * time.Second

// the process itself acts with this identity when seeding state from config
var bootstrap = types.Caller{Roles: types.RoleAdmin}

func openLog(dir string) *os.File {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Printf("error creating log dir: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(dir, fmt.Sprintf("log_%s.txt", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Printf("error opening log file for writing: %v\n", err)
		os.Exit(1)
	}
	return f
}

func runServer(configPath string) error {
	config.Init(configPath)
	cfg := &config.Config

	f := openLog(cfg.Server.LogDir)
	defer f.Close()
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(io.MultiWriter(os.Stdout, f), log.LevelInfo, false)))
	log.Info("Starting cross-chain messenger", "baseChain", cfg.BaseChainID)

	// connect to Redis, without persistence do not continue
	store := redis.NewStore(redis.NewPool(cfg.Server.RedisHost, cfg.Server.RedisPort))
	if err := store.Ping(); err != nil {
		log.Crit("Cannot connect to Redis", "host", cfg.Server.RedisHost, "port", cfg.Server.RedisPort, "err", err)
	}

	bus := events.NewBus()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bridgeMetrics := metrics.NewBridgeMetrics(promRegistry)
	metrics.RegisterDropped(promRegistry, bus)
	bus.Handle(bridgeMetrics.Observe)

	reg := registry.New(bus, store)
	chains, err := store.LoadChains()
	if err != nil {
		log.Crit("Cannot load chains", "err", err)
	}
	reg.Restore(chains)
	// config.Init validated every conversion below, their errors are nil.
	// Configured chains only seed the registry, journaled descriptors win.
	for i := range cfg.Chains {
		desc, _ := cfg.Chains[i].Descriptor()
		if _, err := reg.Chain(desc.ChainID); err == nil {
			continue
		}
		if err := reg.AddChain(bootstrap, desc); err != nil {
			log.Crit("Cannot register configured chain", "chainId", desc.ChainID, "err", err)
		}
	}

	comp := compressor.New(bus)
	params, _ := cfg.CompressorParams()
	for dt, p := range params {
		if err := comp.SetParams(bootstrap, dt, p); err != nil {
			log.Crit("Cannot apply compressor params", "dataType", dt, "err", err)
		}
	}

	optCfg, _ := cfg.OptimizerConfig()
	opt := optimizer.New(optCfg, reg, comp, bus)

	domain, _ := cfg.SignatureDomain()
	validator, err := signature.NewValidator(domain, nil)
	if err != nil {
		log.Crit("Cannot build signature validator", "err", err)
	}

	msgr := messenger.New(messenger.Config{SourceChain: cfg.BaseChainID}, messenger.Deps{
		Chains:    reg,
		Costs:     opt,
		Encoder:   comp,
		Validator: validator,
		Journal:   store,
		Events:    bus,
	})
	msgs, err := store.LoadMessages()
	if err != nil {
		log.Crit("Cannot load messages", "err", err)
	}
	bindings, err := store.LoadBindings()
	if err != nil {
		log.Crit("Cannot load bindings", "err", err)
	}
	msgr.Restore(msgs, bindings)
	log.Info("State restored", "chains", len(reg.ListAll()), "messages", len(msgs), "bindings", len(bindings))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// worker threads:
	// * one gas oracle per configured chain with RPC endpoints
	// * relayer backlog monitor
	// * API serving HTTP(S) server (serves as main worker thread)
	if cfg.GasOracle.Enabled {
		operator, _ := types.ParseAddress(cfg.GasOracle.Operator)
		oracle := types.Caller{Address: operator, Roles: types.RoleOperator}
		for _, ch := range cfg.Chains {
			if len(ch.RPCList) == 0 {
				continue
			}
			go workers.Worker_gasOracle(ctx, ch.ChainID, EVMRPC.NewChain(ch.ChainID, ch.RPCList), opt, oracle, cfg.GasOracle.Interval)
		}
	}
	go workers.Worker_pendingMonitor(ctx, msgr, reg, bridgeMetrics, pendingScanInterval)

	callers, _ := cfg.Callers()
	api := handlers.New(cfg.BaseChainID, handlers.Deps{
		Registry:   reg,
		Messenger:  msgr,
		Optimizer:  opt,
		Compressor: comp,
		Bus:        bus,
		Store:      store,
	})
	return workers.Worker_HTTP(ctx, cfg.Server, workers.NewRouter(api, callers, promRegistry))
}
