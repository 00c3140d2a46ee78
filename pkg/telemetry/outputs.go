package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/itohio/gohrm/pkg/config"
)

// stdout receives raw report lines when enabled.
var stdout io.Writer = os.Stdout

// Outputs is the set of sinks selected by the telemetry configuration.
type Outputs struct {
	Multi

	log    *zap.Logger
	nc     *nats.Conn
	hub    *Hub
	server *http.Server
	addr   net.Addr
}

// Open creates the configured sinks: the logger, standard output, a NATS
// publisher and a websocket endpoint. Each one is optional. session tags NATS messages.
func Open(cfg config.TelemetryConfig, session string, log *zap.Logger) (*Outputs, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Outputs{log: log}

	if cfg.Log {
		o.Multi = append(o.Multi, NewLogSink(log.Named("telemetry")))
	}
	if cfg.Stdout {
		o.Multi = append(o.Multi, NewWriterSink(stdout))
	}

	if cfg.NATSURL != "" {
		nc, err := Connect(cfg.NATSURL, "gohrm-"+session)
		if err != nil {
			return nil, err
		}
		o.nc = nc
		o.Multi = append(o.Multi, NewNATSSink(nc, cfg.Subject, session))
		log.Info("publishing to nats", zap.String("url", cfg.NATSURL), zap.String("subject", cfg.Subject))
	}

	if cfg.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
		o.hub = NewHub(log.Named("ws"))
		mux := http.NewServeMux()
		mux.Handle(cfg.Path, o.hub)
		o.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		o.addr = ln.Addr()
		o.Multi = append(o.Multi, o.hub)

		go func() {
			if err := o.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("websocket server stopped", zap.Error(err))
			}
		}()
		log.Info("serving websocket", zap.Stringer("addr", o.addr), zap.String("path", cfg.Path))
	}

	return o, nil
}

// Addr returns the websocket listen address, nil when not serving.
func (o *Outputs) Addr() net.Addr {
	return o.addr
}

// Close disconnects clients, stops the server and drains NATS.
func (o *Outputs) Close() error {
	var errs []error
	if o.hub != nil {
		errs = append(errs, o.hub.Close())
	}
	if o.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		errs = append(errs, o.server.Shutdown(ctx))
		cancel()
	}
	if o.nc != nil {
		errs = append(errs, o.nc.Drain())
	}
	return errors.Join(errs...)
}
