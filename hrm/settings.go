package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/config"
	"github.com/itohio/gohrm/pkg/hrm"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createCameraTab(state),
		createDetectTab(state),
		createReportTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig validates the edited configuration and writes it out. On a
// validation error the previous configuration is restored. Changes apply
// on the next connect.
func saveConfig(state *appState, prev config.Config) {
	if err := state.cfg.Validate(); err != nil {
		*state.cfg = prev
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.cfgPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

func parseFloat(e *widget.Entry, dst *float64) {
	if v, err := strconv.ParseFloat(e.Text, 64); err == nil {
		*dst = v
	}
}

func parseDuration(e *widget.Entry, dst *time.Duration) {
	if v, err := time.ParseDuration(e.Text); err == nil {
		*dst = v
	}
}

func parseInt(e *widget.Entry, dst *int) {
	if v, err := strconv.Atoi(e.Text); err == nil {
		*dst = v
	}
}

func entry(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := hrm.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}
	baudEntry := entry(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected
				}
				state.cfg.Serial.Port = selectedPort
			}
			parseInt(baudEntry, &state.cfg.Serial.BaudRate)
			saveConfig(state, prev)

			// Restart the capture chain on the new port
			if state.cfg.Serial != prev.Serial && state.connected() &&
				state.cfg.Camera.Backend == config.BackendSerial {
				state.disconnect()
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createCameraTab creates the Camera configuration tab.
func createCameraTab(state *appState) *container.TabItem {
	cam := &state.cfg.Camera

	backendSelect := widget.NewSelect([]string{config.BackendSerial, config.BackendMock, config.BackendRPi}, nil)
	backendSelect.SetSelected(cam.Backend)
	sourceSelect := widget.NewSelect([]string{capture.SourceBurst, capture.SourceTicker}, nil)
	sourceSelect.SetSelected(cam.EdgeSource)

	pixelsEntry := entry(strconv.Itoa(cam.Pixels))
	integrationEntry := entry(cam.Integration.String())
	edgeEntry := entry(cam.EdgePeriod.String())
	sampleRateEntry := entry(cam.SampleRate.String())
	bitsEntry := entry(strconv.Itoa(cam.ADCBits))
	vrefEntry := entry(fmt.Sprintf("%.2f", cam.VRef))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Backend", Widget: backendSelect},
			{Text: "Pixels", Widget: pixelsEntry},
			{Text: "Integration", Widget: integrationEntry},
			{Text: "Edge Period", Widget: edgeEntry},
			{Text: "Edge Source", Widget: sourceSelect},
			{Text: "Stream Sample Period", Widget: sampleRateEntry},
			{Text: "ADC Bits", Widget: bitsEntry},
			{Text: "VRef (V)", Widget: vrefEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			cam.Backend = backendSelect.Selected
			cam.EdgeSource = sourceSelect.Selected
			parseInt(pixelsEntry, &cam.Pixels)
			parseDuration(integrationEntry, &cam.Integration)
			parseDuration(edgeEntry, &cam.EdgePeriod)
			parseDuration(sampleRateEntry, &cam.SampleRate)
			parseInt(bitsEntry, &cam.ADCBits)
			parseFloat(vrefEntry, &cam.VRef)
			saveConfig(state, prev)
			state.integrationSel.Options = integrationOptions(cam.Pixels, cam.EdgePeriod)
			state.integrationSel.SetSelected(cam.Integration.String())
		},
	}

	return container.NewTabItem("Camera", form)
}

// createDetectTab creates the Detector configuration tab.
func createDetectTab(state *appState) *container.TabItem {
	det := &state.cfg.Detect

	modeSelect := widget.NewSelect([]string{config.ModeMax, config.ModeThreshold}, nil)
	modeSelect.SetSelected(det.Mode)
	lowEntry := entry(fmt.Sprintf("%.3f", det.Low))
	highEntry := entry(fmt.Sprintf("%.3f", det.High))
	refractoryEntry := entry(det.Refractory.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Mode", Widget: modeSelect},
			{Text: "Band Low (V)", Widget: lowEntry},
			{Text: "Band High (V)", Widget: highEntry},
			{Text: "Refractory", Widget: refractoryEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			det.Mode = modeSelect.Selected
			parseFloat(lowEntry, &det.Low)
			parseFloat(highEntry, &det.High)
			parseDuration(refractoryEntry, &det.Refractory)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Detector", form)
}

// createReportTab creates the Report configuration tab.
func createReportTab(state *appState) *container.TabItem {
	rep := &state.cfg.Report

	everyEntry := entry(strconv.FormatUint(rep.Every, 10))
	windowEntry := entry(fmt.Sprintf("%.1f", rep.WindowSeconds))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Report Every (passes)", Widget: everyEntry},
			{Text: "History (seconds)", Widget: windowEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			if v, err := strconv.ParseUint(everyEntry.Text, 10, 64); err == nil {
				rep.Every = v
			}
			parseFloat(windowEntry, &rep.WindowSeconds)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Report", form)
}

// createMockTab creates the Mock device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	m := &state.cfg.Mock

	rateEntry := entry(fmt.Sprintf("%.1f", m.HeartRate))
	baselineEntry := entry(fmt.Sprintf("%.3f", m.Baseline))
	amplitudeEntry := entry(fmt.Sprintf("%.3f", m.Amplitude))
	modulationEntry := entry(fmt.Sprintf("%.2f", m.Modulation))
	widthEntry := entry(fmt.Sprintf("%.1f", m.PeakWidth))
	noiseEntry := entry(fmt.Sprintf("%.4f", m.NoiseLevel))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Heart Rate (bpm)", Widget: rateEntry},
			{Text: "Baseline (V)", Widget: baselineEntry},
			{Text: "Amplitude (V)", Widget: amplitudeEntry},
			{Text: "Modulation", Widget: modulationEntry},
			{Text: "Peak Width (pixels)", Widget: widthEntry},
			{Text: "Noise Level (V)", Widget: noiseEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			parseFloat(rateEntry, &m.HeartRate)
			parseFloat(baselineEntry, &m.Baseline)
			parseFloat(amplitudeEntry, &m.Amplitude)
			parseFloat(modulationEntry, &m.Modulation)
			parseFloat(widthEntry, &m.PeakWidth)
			parseFloat(noiseEntry, &m.NoiseLevel)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Mock", form)
}
