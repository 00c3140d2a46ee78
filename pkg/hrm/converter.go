package hrm

import (
	"time"

	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/sample"
	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// Converter turns a device record stream into the frames the monitor
// analyses.
type Converter func(in <-chan line.Record) <-chan sample.Frame

// NewConverter creates a converter. Frame and sample records become frames;
// rate records computed on the device are handed to onRate, which may be nil.
func NewConverter(bufSize int, log *zap.Logger, onRate func(line.Record)) Converter {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return func(in <-chan line.Record) <-chan sample.Frame {
		out := make(chan sample.Frame, bufSize)

		go func() {
			defer close(out)

			for rec := range in {
				switch rec.Kind {
				case line.KindRate:
					if onRate != nil {
						onRate(rec)
					}
					continue
				case line.KindFrame, line.KindSample:
				default:
					continue
				}

				select {
				case out <- rec.Frame():
				case <-time.After(time.Second):
					log.Warn("converter output channel full, dropping frame", zap.Uint64("stamp", rec.Stamp))
				}
			}
		}()

		return out
	}
}
