// Command hrmd runs the heart rate monitor without a display. Report lines
// go to the configured telemetry outputs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/hrm"
	"github.com/itohio/gohrm/pkg/logging"
	"github.com/itohio/gohrm/pkg/monitor"
	"github.com/itohio/gohrm/pkg/telemetry"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		portFlag    = flag.String("p", "", "Serial port override")
		backendFlag = flag.String("backend", "", "Device backend override (serial, mock or rpi)")
		modeFlag    = flag.String("mode", "", "Detector override (max or threshold)")
		natsFlag    = flag.String("nats", "", "NATS server URL override")
		listenFlag  = flag.String("listen", "", "Websocket listen address override")
		stdoutFlag  = flag.Bool("stdout", false, "Print report lines on standard output")
		statsFlag   = flag.Duration("stats", 30*time.Second, "Interval between statistics log lines, 0 disables")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *backendFlag != "" {
		cfg.Camera.Backend = *backendFlag
	}
	if *modeFlag != "" {
		cfg.Detect.Mode = *modeFlag
	}
	if *natsFlag != "" {
		cfg.Telemetry.NATSURL = *natsFlag
	}
	if *listenFlag != "" {
		cfg.Telemetry.Listen = *listenFlag
	}
	if *stdoutFlag {
		cfg.Telemetry.Stdout = true
	}

	if err := run(cfg, *statsFlag); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, statsEvery time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	session := uuid.NewString()
	logger = logger.With(zap.String("session", session))
	logger.Info("starting",
		zap.String("backend", cfg.Camera.Backend),
		zap.String("mode", cfg.Detect.Mode),
		zap.Duration("integration", cfg.Camera.Integration),
	)

	outputs, err := telemetry.Open(cfg.Telemetry, session, logger)
	if err != nil {
		return err
	}
	defer outputs.Close()

	dev, err := hrm.Open(cfg, logger.Named("device"))
	if err != nil {
		return err
	}

	mon := monitor.New(cfg,
		monitor.WithSink(outputs),
		monitor.WithLogger(logger.Named("monitor")),
	)
	chain, err := hrm.Start(dev, mon, logger, func(r line.Record) {
		logger.Debug("device rate", zap.Float64("bpm", r.BPM), zap.Uint64("interval", r.Interval))
	})
	if err != nil {
		return fmt.Errorf("connect %s device: %w", cfg.Camera.Backend, err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var tick <-chan time.Time
	if statsEvery > 0 {
		ticker := time.NewTicker(statsEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case sig := <-shutdown:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			err := chain.Close()
			logStats(logger, mon)
			return err
		case <-chain.Done():
			chain.Close()
			logStats(logger, mon)
			return fmt.Errorf("device closed its record stream")
		case <-tick:
			logStats(logger, mon)
		}
	}
}

func logStats(logger *zap.Logger, mon *monitor.Monitor) {
	st := mon.Stats()
	fields := []zap.Field{
		zap.Uint64("frames", st.Frames),
		zap.Uint64("analysed", st.Analysed),
		zap.Uint64("beats", st.Beats),
		zap.Uint64("estimates", st.Estimates),
		zap.Uint64("send_errors", st.SendErrs),
	}
	if est, ok := mon.Latest(); ok {
		fields = append(fields, zap.Float64("bpm", est.BPM))
	}
	logger.Info("stats", fields...)
}
