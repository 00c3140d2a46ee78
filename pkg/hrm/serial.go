package hrm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/telemetry/line"
)

const (
	// DefaultBaudRate is the monitor firmware UART speed.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the records channel buffer.
	DefaultBufferSize = 100
	// maxLineLength fits a frame record of the largest supported line.
	maxLineLength = 64 * 1024
)

var (
	ErrConnected    = errors.New("already connected")
	ErrNotConnected = errors.New("not connected")
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is a connection to the monitor firmware over a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	log      *zap.Logger
	open     func(name string, mode *serial.Mode) (io.ReadWriteCloser, error)

	conn      io.ReadWriteCloser
	records   chan line.Record
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, log *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		log:      log.With(zap.String("port", port)),
		open:     openPort,
		records:  make(chan line.Record, bufSize),
	}
}

func openPort(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(name, mode)
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading records.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrConnected
	}

	conn, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if d.done != nil {
		// The previous session closed its records channel.
		d.records = make(chan line.Record, d.bufSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.done = make(chan struct{})
	d.connected = true

	go d.readRecords(ctx, conn, d.records, d.done)
	d.log.Info("connected", zap.Int("baud", d.baudRate))

	return nil
}

// Close closes the port. The records channel is closed once the reader
// goroutine has stopped.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		d.log.Warn("error closing serial port", zap.Error(err))
	}
	<-d.done
	d.conn = nil
	d.connected = false
	d.log.Info("disconnected")

	return nil
}

// Records returns the channel parsed records are delivered on.
func (d *Serial) Records() <-chan line.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.records
}

// SetIntegration sends the integration time command to the firmware.
func (d *Serial) SetIntegration(t time.Duration) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := io.WriteString(d.conn, line.Integration(t)); err != nil {
		return fmt.Errorf("failed to send integration command: %w", err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readRecords reads lines from the port and parses them into records.
// It owns the records channel and closes it on exit.
func (d *Serial) readRecords(ctx context.Context, r io.Reader, out chan<- line.Record, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		rec, err := line.Parse(scanner.Text())
		switch {
		case errors.Is(err, line.ErrEmpty):
			continue
		case err != nil:
			d.log.Debug("failed to parse line", zap.String("line", scanner.Text()), zap.Error(err))
			continue
		case rec.Kind == line.KindMarker:
			continue
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return
		default:
			d.log.Warn("records channel full, dropping record", zap.Stringer("kind", rec.Kind))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		d.log.Warn("error reading from serial port", zap.Error(err))
	}
}
