// Command wifimanager-demo wires a Manager against a fake radio driver and
// IP adapter and exercises its public API from the command line, the way
// cmd/agent.go wires the production subsystem manager against its config
// file and background workers.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	wifimanager "github.com/tidklaas/esp32-wifi-manager"
	"github.com/tidklaas/esp32-wifi-manager/internal/wmngr"
)

var activeBackgroundWorkers sync.WaitGroup

func main() {
	var opts struct {
		NVSDir      string `long:"nvs-dir" description:"directory holding the persisted config record" default:"/tmp/wifimanager-demo"`
		DefaultSSID string `long:"default-ssid" description:"override the compiled-in AP SSID"`
		Dispatch    string `long:"dispatch" description:"driver dispatch policy" choice:"task" choice:"timer" default:"task"`
		Debug       bool   `long:"debug" short:"d" description:"enable debug logging"`
		Help        bool   `long:"help" short:"h" description:"show this help message"`
	}

	p := flags.NewParser(&opts, flags.IgnoreUnknown)
	p.Usage = "demonstrates the wifi manager's state machine against a simulated radio."

	_, err := p.Parse()
	exitIfError(err)

	if opts.Help {
		var b bytes.Buffer
		p.WriteHelp(&b)
		fmt.Println(b.String())
		return
	}

	logger := newLogger(opts.Debug)

	if err := os.MkdirAll(opts.NVSDir, 0o755); err != nil {
		logger.Fatalw("creating NVS directory", "err", err)
	}

	dispatch := wifimanager.DispatchTask
	if opts.Dispatch == "timer" {
		dispatch = wifimanager.DispatchTimer
	}

	drv := newFakeDriver()
	ip := newFakeAdapter()

	mgr := wifimanager.New(drv, ip, logger, wifimanager.Config{
		NVSDir:   opts.NVSDir,
		Dispatch: dispatch,
		Defaults: wmngr.DefaultsOverride{APSSID: opts.DefaultSSID},
	})

	ctx := setupExitSignalHandling(context.TODO())

	if err := mgr.Init(ctx); err != nil {
		logger.Fatalw("initializing wifi manager", "err", err)
	}
	defer mgr.Stop()

	logger.Infow("wifi manager started", "state", mgr.GetState(), "nvs_valid", mgr.NVSValid())

	if err := mgr.StartScan(); err != nil {
		logger.Warnw("starting scan", "err", err)
	}

	<-ctx.Done()
	activeBackgroundWorkers.Wait()
	logger.Info("shut down")
}

func newLogger(debug bool) *zap.SugaredLogger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

func setupExitSignalHandling(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 16)
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()
		defer cancel()
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
	}()
	return ctx
}

func exitIfError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
