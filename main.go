package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"weight-monitor/config"
	"weight-monitor/devices"
	"weight-monitor/display"
	"weight-monitor/logging"
	"weight-monitor/output"
	"weight-monitor/tui"
	"weight-monitor/types"
	"weight-monitor/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logging.Init(cfg.Debug, cfg.TUI)
	log := logging.For(logging.TypeSystem)

	driver, err := devices.NewDriver(cfg.Driver)
	if err != nil {
		log.Fatal().Err(err).Msg("serial driver")
	}

	disp := display.New()
	scale := devices.NewManager(driver, disp, devices.DefaultTimeouts())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("driver", driver.Name()).Msg("⚖️ weight monitor starting")
	if _, err := scale.ListPorts(); err != nil {
		log.Warn().Err(err).Msg("port enumeration failed")
	}

	if cfg.AutoConnect {
		if err := scale.Connect(types.ConnectionConfig{Port: cfg.Port, BaudRate: cfg.Baud}); err != nil {
			log.Error().Err(err).Msg("auto-connect failed, use the web page or terminal UI to connect")
		}
	}

	var wg sync.WaitGroup

	if cfg.AutoType {
		events := make(chan types.Event, 16)
		scale.AddListener(events)
		typer := output.NewTyper(cfg.WeightThreshold)
		wg.Add(1)
		go func() {
			defer wg.Done()
			typer.Run(ctx, events, disp.Current, logging.For(logging.TypeSystem))
		}()
		log.Info().Uint64("threshold", cfg.WeightThreshold).Msg("⌨ auto-type enabled")
	}

	server := web.NewServer(cfg.Addr, cfg.LogDir, scale, disp)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("web server stopped")
			stop()
		}
	}()

	if cfg.TUI {
		events := make(chan types.Event, 64)
		scale.AddListener(events)
		err := tui.Run(ctx, scale, disp, events, tui.Options{Port: cfg.Port, Baud: cfg.Baud, LogDir: cfg.LogDir})
		scale.RemoveListener(events)
		if err != nil {
			log.Error().Err(err).Msg("terminal UI")
		}
		stop()
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("shutting down")
	scale.Disconnect()
	wg.Wait()
	log.Info().Msg("bye")
}
