package scope

import (
	"image/color"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/gohrm/pkg/config"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	beatColor  = color.RGBA{R: 0, G: 100, B: 200, A: 255}   // Dark blue
	bandColor  = color.RGBA{R: 60, G: 140, B: 60, A: 255}   // Dim green
	rateColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255} // Light gray
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// plot is a rectangle of the widget with its axis ranges.
type plot struct {
	x, y, w, h float32
	yMin, yMax float32
	xMin, xMax float64
}

func (p plot) pos(x float64, y float32) fyne.Position {
	px := p.x + float32((x-p.xMin)/(p.xMax-p.xMin))*p.w
	py := p.y + p.h - (y-p.yMin)/(p.yMax-p.yMin)*p.h
	return fyne.NewPos(px, py)
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	s := r.scope
	s.mu.RLock()
	trace := s.displayTrace
	history := s.displayHistory
	beats := s.beats
	bpm, hasRate := s.bpm, s.hasRate
	yMin, yMax := s.yMin, s.yMax
	xMin, xMax := s.xMin, s.xMax
	s.mu.RUnlock()

	size := s.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(20.0)
	marginBottom := float32(40.0)
	gap := float32(30.0)

	width := size.Width - marginLeft - marginRight
	height := size.Height - marginTop - marginBottom - gap

	// Line trace on top, history below it.
	top := plot{
		x: marginLeft, y: marginTop, w: width, h: height * 0.4,
		yMin: yMin, yMax: yMax,
		xMin: 0, xMax: float64(max(len(trace)-1, 1)),
	}
	bottom := plot{
		x: marginLeft, y: marginTop + top.h + gap, w: width, h: height - top.h,
		yMin: yMin, yMax: yMax,
		xMin: float64(xMin), xMax: float64(xMax),
	}

	r.drawGrid(top, 4, 8, func(x float64) string { return strconv.Itoa(int(x)) })
	r.drawGrid(bottom, 6, 10, func(x float64) string { return r.formatStamp(x - bottom.xMin) })

	if s.cfg.Detect.Mode == config.ModeThreshold {
		r.drawBand(bottom, float32(s.cfg.Detect.Low), float32(s.cfg.Detect.High))
	}
	r.drawTrace(top, trace)
	r.drawPeak(top, trace)
	r.drawHistory(bottom, history)
	r.drawBeats(bottom, beats)

	if hasRate {
		r.drawRate(bottom, bpm)
	}
}

// drawGrid draws the oscilloscope-style grid with labels.
func (r *scopeRenderer) drawGrid(p plot, numHLines, numVLines int, xLabel func(float64) string) {
	for i := range numHLines + 1 {
		y := p.y + float32(i)*p.h/float32(numHLines)
		r.line(gridColor, 1, fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y))

		value := p.yMax - float32(i)*(p.yMax-p.yMin)/float32(numHLines)
		r.text(formatVoltage(value), labelColor, 10, fyne.TextAlignTrailing, fyne.NewPos(p.x-5, y-6))
	}

	for i := range numVLines + 1 {
		x := p.x + float32(i)*p.w/float32(numVLines)
		r.line(gridColor, 1, fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h))

		value := p.xMin + float64(i)*(p.xMax-p.xMin)/float64(numVLines)
		r.text(xLabel(value), labelColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, p.y+p.h+5))
	}
}

// drawTrace draws the last line frame, one point per pixel.
func (r *scopeRenderer) drawTrace(p plot, trace []float32) {
	for i := range len(trace) - 1 {
		r.line(traceColor, 1.5, p.pos(float64(i), trace[i]), p.pos(float64(i+1), trace[i+1]))
	}
}

// drawPeak marks the brightest pixel of the trace.
func (r *scopeRenderer) drawPeak(p plot, trace []float32) {
	if len(trace) < 2 {
		return
	}
	idx := 0
	for i, v := range trace {
		if v > trace[idx] {
			idx = i
		}
	}
	pos := p.pos(float64(idx), p.yMax)
	r.line(beatColor, 1, pos, fyne.NewPos(pos.X, p.y+p.h))
}

// drawHistory draws the brightness history curve.
func (r *scopeRenderer) drawHistory(p plot, history []Point) {
	for i := range len(history) - 1 {
		a, b := history[i], history[i+1]
		r.line(traceColor, 1.5, p.pos(float64(a.Stamp), a.Volts), p.pos(float64(b.Stamp), b.Volts))
	}
}

// drawBeats draws vertical lines at detected beats.
func (r *scopeRenderer) drawBeats(p plot, beats []uint64) {
	for _, stamp := range beats {
		x := float64(stamp)
		if x < p.xMin || x > p.xMax {
			continue
		}
		pos := p.pos(x, p.yMax)
		r.line(beatColor, 1, pos, fyne.NewPos(pos.X, p.y+p.h))
	}
}

// drawBand draws the threshold detector band.
func (r *scopeRenderer) drawBand(p plot, low, high float32) {
	for _, v := range []float32{low, high} {
		if v < p.yMin || v > p.yMax {
			continue
		}
		r.line(bandColor, 1, p.pos(p.xMin, v), p.pos(p.xMax, v))
	}
}

// drawRate draws the heart rate label.
func (r *scopeRenderer) drawRate(p plot, bpm float64) {
	r.text(strconv.FormatFloat(bpm, 'f', 1, 64)+" bpm", rateColor, 14, fyne.TextAlignLeading, fyne.NewPos(p.x+10, p.y+10))
}

func (r *scopeRenderer) line(c color.Color, width float32, a, b fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = a
	l.Position2 = b
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

// formatStamp formats a span of stamp units as seconds.
func (r *scopeRenderer) formatStamp(units float64) string {
	tick := r.scope.cfg.Detect.Tick
	if tick <= 0 {
		tick = time.Millisecond
	}
	return formatTime(time.Duration(units * float64(tick)))
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}

func formatVoltage(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 3, 32) + "V"
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}
