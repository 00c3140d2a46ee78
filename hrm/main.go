package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/hrm"
	"github.com/itohio/gohrm/pkg/logging"
	"github.com/itohio/gohrm/pkg/monitor"
	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/scope"
	"github.com/itohio/gohrm/pkg/telemetry"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag    = flag.Bool("mock", false, "Use the simulated sensor instead of a device")
		backendFlag = flag.String("backend", "", "Device backend override (serial, mock or rpi)")
		modeFlag    = flag.String("mode", "", "Detector override (max or threshold)")
	)
	flag.Parse()

	// Load configuration
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
	if *mockFlag {
		cfg.Camera.Backend = config.BackendMock
	}
	if *modeFlag != "" {
		cfg.Detect.Mode = *modeFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	session := uuid.NewString()
	logger = logger.With(zap.String("session", session))

	outputs, err := telemetry.Open(cfg.Telemetry, session, logger)
	if err != nil {
		logger.Fatal("failed to open telemetry", zap.Error(err))
	}
	defer outputs.Close()

	// Create Fyne application
	application := app.NewWithID("com.itohio.gohrm")

	// Create main window
	window := application.NewWindow("Heart Rate Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	appState := &appState{
		cfg:     cfg,
		cfgPath: *configFlag,
		log:     logger,
		outputs: outputs,
		window:  window,
	}

	toolbar := createToolbar(appState)

	// Create scope widget for graph display
	scopeWidget := scope.New(cfg)
	appState.scopeWidget = scopeWidget

	content := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		scopeWidget,
	)

	window.SetContent(content)
	window.SetOnClosed(func() {
		appState.disconnect()
	})
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg     *config.Config
	cfgPath string
	log     *zap.Logger
	outputs *telemetry.Outputs

	scopeWidget    *scope.ScopeWidget
	window         fyne.Window
	connectBtn     *widget.Button
	integrationSel *widget.Select
	rateLabel      *widget.Label

	chain *hrm.Chain // Current capture chain (nil if not connected)

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

func (s *appState) connected() bool {
	return s.chain != nil && s.chain.Device().IsConnected()
}

// createToolbar creates the application toolbar with Connect, Settings and
// the integration time selector.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.integrationSel = createIntegrationSelect(state)
	state.integrationSel.Disable()

	state.rateLabel = widget.NewLabel("-- bpm")
	state.rateLabel.TextStyle = fyne.TextStyle{Bold: true}

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(connectBtn, settingsBtn, state.rateLabel),                // left
		container.NewHBox(widget.NewLabel("Integration"), state.integrationSel), // right
		nil, // center (spacer)
	)
}

// newMonitor creates a monitor for the current configuration wired to the
// scope widget and the telemetry outputs.
func (s *appState) newMonitor() *monitor.Monitor {
	mon := monitor.New(s.cfg,
		monitor.WithSink(s.outputs),
		monitor.WithLogger(s.log.Named("monitor")),
	)

	// Throttle updates to ~60 FPS to keep the UI smooth.
	const updateInterval = 16 * time.Millisecond
	mon.OnUpdate(func(frame sample.Frame, events []detect.Event) {
		s.updateMu.Lock()
		now := time.Now()
		if now.Sub(s.lastUpdateTime) < updateInterval {
			s.updateMu.Unlock()
			return
		}
		s.lastUpdateTime = now
		s.updateMu.Unlock()

		latest, ok := mon.Latest()
		fyne.Do(func() {
			s.scopeWidget.UpdateData(frame, events, latest, ok)
			if ok {
				s.rateLabel.SetText(fmt.Sprintf("%.1f bpm", latest.BPM))
			}
		})
	})
	return mon
}

// disconnect gracefully closes the capture chain.
func (s *appState) disconnect() {
	if s.chain == nil {
		return
	}
	if err := s.chain.Close(); err != nil {
		s.log.Warn("error closing device", zap.Error(err))
	}
	s.chain = nil
	s.integrationSel.Disable()
	s.log.Info("disconnected", zap.String("backend", s.cfg.Camera.Backend))
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.connected() {
		state.disconnect()
		return
	}

	device, err := hrm.Open(state.cfg, state.log.Named("device"))
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to open %s device: %w", state.cfg.Camera.Backend, err), state.window)
		return
	}

	state.scopeWidget.Clear()
	state.rateLabel.SetText("-- bpm")

	chain, err := hrm.Start(device, state.newMonitor(), state.log, func(r line.Record) {
		state.log.Debug("device rate", zap.Float64("bpm", r.BPM), zap.Uint64("interval", r.Interval))
	})
	if err != nil {
		if state.cfg.Camera.Backend == config.BackendSerial {
			err = fmt.Errorf("failed to connect to %s: %w", state.cfg.Serial.Port, err)
		}
		dialog.ShowError(err, state.window)
		return
	}
	state.chain = chain
	state.log.Info("connected", zap.String("backend", state.cfg.Camera.Backend))

	if state.cfg.Detect.Mode != config.ModeThreshold {
		state.integrationSel.Enable()
	}
}
