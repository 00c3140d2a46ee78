package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/gohrm/pkg/capture"
	"github.com/itohio/gohrm/pkg/detect"
)

// Device backends.
const (
	BackendSerial = "serial"
	BackendMock   = "mock"
	BackendRPi    = "rpi"
)

// Detector modes.
const (
	ModeMax       = "max"       // line-scan running maximum
	ModeThreshold = "threshold" // streaming band threshold
)

var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Camera    CameraConfig    `yaml:"camera"`
	Detect    DetectConfig    `yaml:"detect"`
	Report    ReportConfig    `yaml:"report"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Mock      MockConfig      `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// CameraConfig describes the linescan camera and how it is clocked.
type CameraConfig struct {
	Backend     string        `yaml:"backend"` // serial, mock or rpi
	Pixels      int           `yaml:"pixels"`
	Integration time.Duration `yaml:"integration"`
	EdgePeriod  time.Duration `yaml:"edge_period"` // Half a camera clock period
	EdgeSource  string        `yaml:"edge_source"` // ticker or burst
	SampleRate  time.Duration `yaml:"sample_rate"` // Streaming sample period
	ADCBits     int           `yaml:"adc_bits"`
	VRef        float64       `yaml:"vref"`
	RPi         RPiConfig     `yaml:"rpi"`
}

// RPiConfig holds BCM pin numbers for the Raspberry Pi backend.
type RPiConfig struct {
	Clock      int `yaml:"clock"`
	Strobe     int `yaml:"strobe"`
	ADCClock   int `yaml:"adc_clock"`
	ADCSelect  int `yaml:"adc_select"`
	ADCDataIn  int `yaml:"adc_data_in"`
	ADCDataOut int `yaml:"adc_data_out"`
	ADCChannel int `yaml:"adc_channel"`
	LED        int `yaml:"led"`
}

// DetectConfig contains heartbeat detector parameters.
type DetectConfig struct {
	Mode       string        `yaml:"mode"`       // max or threshold
	Low        float64       `yaml:"low"`        // Band low edge (V)
	High       float64       `yaml:"high"`       // Band high edge (V)
	Refractory time.Duration `yaml:"refractory"` // Minimum beat spacing
	Tick       time.Duration `yaml:"tick"`       // Duration of one stamp unit
}

// ReportConfig contains the reporting cadence.
type ReportConfig struct {
	Every         uint64  `yaml:"every"`          // Passes between two analysed line frames
	WindowSeconds float64 `yaml:"window_seconds"` // History kept for display
}

// TelemetryConfig selects where report lines go.
type TelemetryConfig struct {
	Log     bool   `yaml:"log"`
	Stdout  bool   `yaml:"stdout"` // Raw report lines on standard output
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Listen  string `yaml:"listen"` // Websocket listen address
	Path    string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"` // Rotated JSON log files; empty logs to console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	HeartRate  float64 `yaml:"heart_rate"`  // Simulated rate (bpm)
	Baseline   float64 `yaml:"baseline"`    // Dark level (V)
	Amplitude  float64 `yaml:"amplitude"`   // Peak height at systole (V)
	Modulation float64 `yaml:"modulation"`  // Fraction of the peak that pulses with the heart
	PeakWidth  float64 `yaml:"peak_width"`  // Peak width (pixels)
	NoiseLevel float64 `yaml:"noise_level"` // Noise level (V)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Camera: CameraConfig{
			Backend:     BackendSerial,
			Pixels:      capture.DefaultPixels,
			Integration: capture.DefaultIntegration,
			EdgePeriod:  capture.DefaultEdgePeriod,
			EdgeSource:  capture.SourceBurst,
			SampleRate:  4 * time.Millisecond,
			ADCBits:     12,
			VRef:        3.3,
			RPi: RPiConfig{
				Clock:      23,
				Strobe:     24,
				ADCClock:   6,
				ADCSelect:  5,
				ADCDataIn:  19,
				ADCDataOut: 13,
				ADCChannel: 0,
				LED:        18,
			},
		},
		Detect: DetectConfig{
			Mode:       ModeMax,
			Low:        detect.DefaultLow,
			High:       detect.DefaultHigh,
			Refractory: detect.DefaultRefractory,
			Tick:       detect.DefaultTick,
		},
		Report: ReportConfig{
			Every:         500,
			WindowSeconds: 30,
		},
		Telemetry: TelemetryConfig{
			Log:     true,
			Subject: "hrm",
			Path:    "/ws",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Mock: MockConfig{
			HeartRate:  72,
			Baseline:   0.2,
			Amplitude:  1.8,
			Modulation: 0.3,
			PeakWidth:  6,
			NoiseLevel: 0.01,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the values that the capture and detect layers depend on.
func (c *Config) Validate() error {
	switch c.Camera.Backend {
	case BackendSerial, BackendMock, BackendRPi:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Camera.Backend)
	}
	if c.Camera.Pixels < capture.MinPixels || c.Camera.Pixels > capture.MaxPixels {
		return fmt.Errorf("%w: pixels %d not in [%d, %d]", ErrInvalid, c.Camera.Pixels, capture.MinPixels, capture.MaxPixels)
	}
	if err := capture.ValidateIntegration(c.Camera.Integration, c.Camera.Pixels, c.Camera.EdgePeriod); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := capture.NewEdgeSource(c.Camera.EdgeSource, c.Camera.EdgePeriod); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Camera.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive", ErrInvalid)
	}
	if c.Camera.ADCBits <= 0 || c.Camera.ADCBits > 16 {
		return fmt.Errorf("%w: adc_bits %d not in [1, 16]", ErrInvalid, c.Camera.ADCBits)
	}

	switch c.Detect.Mode {
	case ModeMax, ModeThreshold:
	default:
		return fmt.Errorf("%w: unknown detect mode %q", ErrInvalid, c.Detect.Mode)
	}
	if c.Detect.Low >= c.Detect.High {
		return fmt.Errorf("%w: detect band [%v, %v] is empty", ErrInvalid, c.Detect.Low, c.Detect.High)
	}
	if c.Detect.High > c.Camera.VRef {
		return fmt.Errorf("%w: detect band above vref %v", ErrInvalid, c.Camera.VRef)
	}
	if c.Report.Every == 0 {
		return fmt.Errorf("%w: report cadence must be positive", ErrInvalid)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Camera.Backend == "" {
		c.Camera.Backend = def.Camera.Backend
	}
	if c.Camera.Pixels == 0 {
		c.Camera.Pixels = def.Camera.Pixels
	}
	if c.Camera.Integration == 0 {
		c.Camera.Integration = def.Camera.Integration
	}
	if c.Camera.EdgePeriod == 0 {
		c.Camera.EdgePeriod = def.Camera.EdgePeriod
	}
	if c.Camera.EdgeSource == "" {
		c.Camera.EdgeSource = def.Camera.EdgeSource
	}
	if c.Camera.SampleRate == 0 {
		c.Camera.SampleRate = def.Camera.SampleRate
	}
	if c.Camera.ADCBits == 0 {
		c.Camera.ADCBits = def.Camera.ADCBits
	}
	if c.Camera.VRef == 0 {
		c.Camera.VRef = def.Camera.VRef
	}

	if c.Detect.Mode == "" {
		c.Detect.Mode = def.Detect.Mode
	}
	if c.Detect.Low == 0 {
		c.Detect.Low = def.Detect.Low
	}
	if c.Detect.High == 0 {
		c.Detect.High = def.Detect.High
	}
	if c.Detect.Refractory == 0 {
		c.Detect.Refractory = def.Detect.Refractory
	}
	if c.Detect.Tick == 0 {
		c.Detect.Tick = def.Detect.Tick
	}

	if c.Report.Every == 0 {
		c.Report.Every = def.Report.Every
	}
	if c.Report.WindowSeconds == 0 {
		c.Report.WindowSeconds = def.Report.WindowSeconds
	}

	if c.Telemetry.Subject == "" {
		c.Telemetry.Subject = def.Telemetry.Subject
	}
	if c.Telemetry.Path == "" {
		c.Telemetry.Path = def.Telemetry.Path
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}

	if c.Mock.HeartRate == 0 {
		c.Mock.HeartRate = def.Mock.HeartRate
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
	if c.Mock.PeakWidth == 0 {
		c.Mock.PeakWidth = def.Mock.PeakWidth
	}
}
