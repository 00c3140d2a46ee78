package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gohrm/pkg/capture"
)

// integrationPresets are offered in the toolbar. Presets the camera
// configuration cannot reach are left out.
var integrationPresets = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	7500 * time.Microsecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// createIntegrationSelect creates the integration time selector.
func createIntegrationSelect(state *appState) *widget.Select {
	options := integrationOptions(state.cfg.Camera.Pixels, state.cfg.Camera.EdgePeriod)

	var sel *widget.Select
	current := state.cfg.Camera.Integration.String()
	sel = widget.NewSelect(options, func(selected string) {
		if selected == current {
			return
		}
		if err := handleIntegrationChange(state, selected); err != nil {
			// Revert on error
			sel.SetSelected(current)
			dialog.ShowError(err, state.window)
			return
		}
		current = selected
	})
	sel.SetSelected(current)
	return sel
}

// integrationOptions lists the presets valid for the camera.
func integrationOptions(pixels int, edgePeriod time.Duration) []string {
	var options []string
	for _, d := range integrationPresets {
		if capture.ValidateIntegration(d, pixels, edgePeriod) == nil {
			options = append(options, d.String())
		}
	}
	return options
}

// handleIntegrationChange sends the new integration time to the device.
func handleIntegrationChange(state *appState, selected string) error {
	d, err := time.ParseDuration(selected)
	if err != nil {
		return fmt.Errorf("invalid integration time %q: %w", selected, err)
	}
	if state.connected() {
		if err := state.chain.Device().SetIntegration(d); err != nil {
			return fmt.Errorf("failed to set integration time: %w", err)
		}
	}
	state.cfg.Camera.Integration = d
	return nil
}
