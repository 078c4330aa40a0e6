// Command cgominerd is the mining daemon: it loads a TOML config,
// wires up the registered mining-core backends, and runs the
// coordinator until an interrupt or a fatal runtime error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/config"
	"github.com/cgminer-rs/cgominer/coordinator"
	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/coreasic"
	"github.com/cgminer-rs/cgominer/corecpu"
	"github.com/cgminer-rs/cgominer/coregpu"
	"github.com/cgminer-rs/cgominer/logging"
)

// Process exit codes, per the documented shutdown contract.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitStartupFailure = 2
	exitRuntimeFatal   = 3
	exitInterrupted    = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "cgominer.toml", "path to the TOML configuration file")
	payoutAddress := flag.String("payout-address", "", "base58check payout address to validate at startup (optional)")
	flag.Parse()

	data, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cgominerd: reading config %s: %v\n", *configPath, err)
		return exitConfigError
	}

	bootLog := logrus.StandardLogger()
	cfg, err := config.Load(data, bootLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cgominerd: invalid config: %v\n", err)
		return exitConfigError
	}

	if *payoutAddress != "" {
		if err := config.ValidatePayoutAddress(*payoutAddress); err != nil {
			fmt.Fprintf(os.Stderr, "cgominerd: %v\n", err)
			return exitConfigError
		}
	}

	logging.Install(logging.Options{Level: cfg.General.LogLevel, Format: cfg.General.LogFormat})
	log := logrus.StandardLogger()

	registry := core.NewRegistry(log)
	if err := registerCores(registry, log); err != nil {
		log.WithError(err).Error("failed to register mining core backends")
		return exitStartupFailure
	}

	coord := coordinator.New(cfg, registry, log)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	if err := coord.Start(startCtx); err != nil {
		log.WithError(err).Error("coordinator failed to start")
		return exitStartupFailure
	}
	log.Info("cgominerd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fatalCh := make(chan error, 1)
	go watchForFatal(coord, fatalCh)

	exitCode := exitOK
	select {
	case <-sigCh:
		log.Info("received interrupt, shutting down")
		exitCode = exitInterrupted
	case err := <-fatalCh:
		log.WithError(err).Error("coordinator entered a fatal error state")
		exitCode = exitRuntimeFatal
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := coord.Stop(stopCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
		if exitCode == exitOK {
			exitCode = exitRuntimeFatal
		}
	}

	return exitCode
}

// registerCores wires every backend this build knows about into the
// registry. Unknown backend names in cores.enabled_cores surface as a
// registry lookup error at Coordinator.Start time.
func registerCores(registry *core.Registry, log logrus.FieldLogger) error {
	if err := registry.Register("cpu_btc", corecpu.NewFactory(log)); err != nil {
		return err
	}
	if err := registry.Register("asic", coreasic.NewFactory(log)); err != nil {
		return err
	}
	if err := registry.Register("gpu", coregpu.NewFactory(log)); err != nil {
		return err
	}
	return nil
}

// watchForFatal polls the coordinator's state and reports once it
// observes StateError, so main can distinguish a runtime fatal from a
// clean interrupt.
func watchForFatal(coord *coordinator.Coordinator, fatalCh chan<- error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if coord.State() == coordinator.StateError {
			fatalCh <- fmt.Errorf("coordinator state is %s", coord.State())
			return
		}
	}
}
