package telemetry

import (
	"bytes"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/itohio/gohrm/pkg/config"
)

func TestOpen_Empty(t *testing.T) {
	o, err := Open(config.TelemetryConfig{}, "", nil)
	require.NoError(t, err)
	assert.Empty(t, o.Multi)
	assert.Nil(t, o.Addr())
	assert.NoError(t, o.Send("R,10,250,240.0"))
	assert.NoError(t, o.Close())
}

func TestOpen_LogAndWebsocket(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	o, err := Open(config.TelemetryConfig{
		Log:    true,
		Listen: "127.0.0.1:0",
		Path:   "/ws",
	}, "session", zap.New(core))
	require.NoError(t, err)
	require.NotNil(t, o.Addr())

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+o.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return o.hub.Clients() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, o.Send("F,500,3750,1,2,3"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "F,500,3750,1,2,3", string(data))
	assert.Equal(t, 1, logs.FilterMessage("telemetry").Len())

	assert.NoError(t, o.Close())
}

func TestOpen_Stdout(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	defer func() { stdout = prev }()

	o, err := Open(config.TelemetryConfig{Stdout: true}, "", nil)
	require.NoError(t, err)
	require.Len(t, o.Multi, 1)

	require.NoError(t, o.Send("R,10,250,240.0"))
	require.NoError(t, o.Send("S,14,2048"))
	assert.Equal(t, "R,10,250,240.0\nS,14,2048\n", buf.String())
	assert.NoError(t, o.Close())
}

func TestOpen_BadListen(t *testing.T) {
	_, err := Open(config.TelemetryConfig{Listen: "256.0.0.1:bad", Path: "/ws"}, "", nil)
	assert.Error(t, err)
}

func TestOpen_NATSUnreachable(t *testing.T) {
	_, err := Open(config.TelemetryConfig{NATSURL: "nats://127.0.0.1:1", Subject: "hrm"}, "", nil)
	assert.Error(t, err)
}
