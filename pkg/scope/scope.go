package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/sample"
)

// Point is one entry of the brightness history: the frame peak for line
// frames, the reading itself for streamed ones.
type Point struct {
	Stamp uint64
	Volts float32
}

// ScopeWidget is a custom Fyne widget that displays the last captured line
// above a rolling brightness history with the detected beats.
type ScopeWidget struct {
	widget.BaseWidget

	cfg    *config.Config
	window uint64 // history length in stamp units

	// Data (protected by mu)
	mu      sync.RWMutex
	trace   []float32
	history []Point
	beats   []uint64
	bpm     float64
	hasRate bool

	// Display buffers (reused for downsampling)
	displayTrace   []float32
	displayHistory []Point

	// Auto-scaling
	yMin, yMax float32
	xMin, xMax uint64

	// Display settings
	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	tick := cfg.Detect.Tick
	if tick <= 0 {
		tick = detect.DefaultTick
	}
	s := &ScopeWidget{
		cfg:              cfg,
		window:           uint64(time.Duration(cfg.Report.WindowSeconds*float64(time.Second)) / tick),
		displayTrace:     make([]float32, 0, 1000),
		displayHistory:   make([]Point, 0, 1000),
		maxDisplayPoints: 1000, // Limit points for efficient rendering
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData updates the widget with the last analysed frame and the
// events within the history window.
// This should be called from the monitor callback using fyne.Do().
func (s *ScopeWidget) UpdateData(frame sample.Frame, events []detect.Event, latest detect.Estimate, hasRate bool) {
	s.mu.Lock()

	s.trace = sample.Trace(s.trace, frame, s.cfg.Camera.ADCBits, float32(s.cfg.Camera.VRef))
	if len(s.trace) > 0 {
		peak, _ := frame.Max()
		p := Point{Stamp: frame.Stamp, Volts: sample.Volts(peak, s.cfg.Camera.ADCBits, float32(s.cfg.Camera.VRef))}
		s.history = AppendHistory(s.history, p, s.window)
	}

	s.beats = s.beats[:0]
	for _, ev := range events {
		s.beats = append(s.beats, ev.Sample.Stamp)
	}
	s.bpm = latest.BPM
	s.hasRate = hasRate

	if frame.IsLine() {
		s.displayTrace = sample.Downsample(s.displayTrace, s.trace, s.maxDisplayPoints)
	} else {
		s.displayTrace = s.displayTrace[:0]
	}
	s.displayHistory = sample.Downsample(s.displayHistory, s.history, s.maxDisplayPoints)

	s.updateAutoScale()

	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// Clear drops all data, e.g. when a new capture starts.
func (s *ScopeWidget) Clear() {
	s.mu.Lock()
	s.trace = s.trace[:0]
	s.history = s.history[:0]
	s.beats = s.beats[:0]
	s.displayTrace = s.displayTrace[:0]
	s.displayHistory = s.displayHistory[:0]
	s.hasRate = false
	s.updateAutoScale()
	s.mu.Unlock()
	s.Refresh()
}

// AppendHistory appends p and drops points older than window stamp units
// before it. A zero window keeps everything.
func AppendHistory(history []Point, p Point, window uint64) []Point {
	history = append(history, p)
	if window == 0 || p.Stamp < window {
		return history
	}
	cutoff := p.Stamp - window
	i := 0
	for i < len(history) && history[i].Stamp < cutoff {
		i++
	}
	if i == 0 {
		return history
	}
	return append(history[:0], history[i:]...)
}

// updateAutoScale calculates the axis ranges from current data.
func (s *ScopeWidget) updateAutoScale() {
	s.yMin, s.yMax = 0, float32(s.cfg.Camera.VRef)
	if s.cfg.Detect.Mode == config.ModeThreshold {
		s.yMin, s.yMax = float32(s.cfg.Detect.Low), float32(s.cfg.Detect.High)
	}
	for _, v := range s.displayTrace {
		s.yMin = min(s.yMin, v)
		s.yMax = max(s.yMax, v)
	}
	for _, p := range s.displayHistory {
		s.yMin = min(s.yMin, p.Volts)
		s.yMax = max(s.yMax, p.Volts)
	}

	// Add 10% margin
	margin := (s.yMax - s.yMin) * 0.1
	if margin == 0 {
		margin = 0.1
	}
	s.yMin -= margin
	s.yMax += margin

	s.xMin, s.xMax = 0, s.window
	if len(s.displayHistory) > 0 {
		s.xMin = s.displayHistory[0].Stamp
		s.xMax = max(s.displayHistory[len(s.displayHistory)-1].Stamp, s.xMin+s.window)
	}
	if s.xMax == s.xMin {
		s.xMax++
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
