//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/detect"
	"github.com/itohio/gohrm/pkg/report"
	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

var (
	adc  machine.ADC
	uart = machine.UART0

	// Serial buffer for reading commands
	serialBuffer [16]byte
	serialPos    int
)

// printSender writes report lines to the console.
type printSender struct{}

func (printSender) Send(l string) error {
	println(l)
	return nil
}

// convert stores the current ADC reading. Get returns a left aligned
// 16-bit value.
func convert(l *capture.Latch) {
	l.Store(adc.Get() >> (16 - ADC_RESOLUTION))
}

func main() {
	PIN_CLK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_SI.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})
	adc = machine.ADC{Pin: PIN_ADC}
	adc.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	// Configure UART for commands
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	println(line.Marker)

	if STREAMING {
		stream()
	}
	scan()
}

// scan runs the camera capture path and reports every REPORT_EVERY passes.
func scan() {
	latch := &capture.Latch{}
	m, err := capture.NewMachine(PIXELS, PIN_CLK, PIN_SI, latch,
		capture.WithConverter(capture.ConverterFunc(convert)),
	)
	if err != nil {
		halt(err)
	}
	w, err := capture.NewWindow(m, INTEGRATION, capture.WithEdgePeriod(EDGE_PERIOD))
	if err != nil {
		halt(err)
	}
	rep := report.New(detect.NewMaxTracker(detect.DefaultTick), printSender{}, REPORT_EVERY, PIN_LED)

	ctx := context.Background()
	src := &capture.BurstSource{Delay: EDGE_PERIOD}
	go src.Run(ctx, m)
	go w.Run(ctx)

	poll := time.NewTicker(time.Millisecond)
	for {
		select {
		case f := <-m.Frames():
			rep.Handle(f)
		case <-poll.C:
			processSerial(w)
		}
	}
}

// stream samples the ADC at a fixed rate for band threshold detection.
func stream() {
	latch := &capture.Latch{}
	clock := capture.NewSystemClock()
	rep := report.New(detect.NewThreshold(ADC_RESOLUTION, ADC_VREF), printSender{}, REPORT_EVERY, PIN_LED)

	ticker := time.NewTicker(SAMPLE_INTERVAL)
	for range ticker.C {
		convert(latch)
		rep.Handle(sample.Frame{Stamp: clock.Millis(), Values: []uint16{latch.Load()}})
	}
}

// processSerial reads integration time commands.
func processSerial(w *capture.Window) {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				if d, err := line.ParseCommand(string(serialBuffer[:serialPos])); err == nil {
					w.SetPeriod(d)
				}
			}
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong command - drop it
			serialPos = 0
		}
	}
}

// halt reports a fatal setup error and blinks the LED forever.
func halt(err error) {
	for {
		println("error:", err.Error())
		PIN_LED.Low()
		time.Sleep(250 * time.Millisecond)
		PIN_LED.High()
		time.Sleep(250 * time.Millisecond)
	}
}
