package telemetry

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/itohio/gohrm/pkg/telemetry/line"
)

// DefaultSubject prefixes the subjects report lines are published on.
const DefaultSubject = "hrm"

// Connect dials a NATS server and keeps reconnecting forever.
func Connect(url, name string) (*nats.Conn, error) {
	if name == "" {
		name = "gohrm"
	}
	nc, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Publisher is the part of *nats.Conn NATSSink needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes every line on <subject>.<kind>, e.g. hrm.frame or
// hrm.rate. Lines that do not parse go to <subject>.raw.
type NATSSink struct {
	pub     Publisher
	subject string
	session string
}

// NewNATSSink creates a sink publishing under subject. A non-empty session
// is attached to every message as the Session header.
func NewNATSSink(pub Publisher, subject, session string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{pub: pub, subject: subject, session: session}
}

// Subject returns the subject a line is published on.
func (s *NATSSink) Subject(l string) string {
	rec, err := line.Parse(l)
	if err != nil {
		return s.subject + ".raw"
	}
	return s.subject + "." + rec.Kind.String()
}

func (s *NATSSink) Send(l string) error {
	msg := nats.NewMsg(s.Subject(l))
	msg.Data = []byte(l)
	if s.session != "" {
		msg.Header.Set("Session", s.session)
	}
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
