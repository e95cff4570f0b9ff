package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const testOrigin = "http://localhost:8080"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig(customize func(cfg *Config)) *Config {
	cfg := NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Workers = 2
	cfg.RateLimit.Burst = 100
	if customize != nil {
		customize(cfg)
	}
	return cfg
}

// startTestServer runs a Server on a loopback port and shuts it down when
// the test ends.
func startTestServer(t *testing.T, customize func(cfg *Config), opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithLogger(newTestLogger())}, opts...)
	srv := New(newTestConfig(customize), opts...)
	require.NoError(t, srv.Init())
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func wsURL(srv *Server, query url.Values) string {
	u := url.URL{Scheme: "ws", Host: srv.Addr().String(), Path: srv.cfg.Path}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// dial connects to srv and fails the test on error.
func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := dialRaw(wsURL(srv, nil), newOriginHeader(testOrigin))
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialRaw(rawURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(rawURL, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env *protocol.Envelope) {
	t.Helper()
	frame, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

// expectNoMessage asserts that nothing arrives on conn within timeout. The
// timeout poisons the read side, so it must be the last read on conn.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, frame, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, got %s", frame)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

// expectClosed asserts that the server closes conn.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection was not closed: %v", err)
		}
		return
	}
}

// establish sends a link establish for uid and waits for the acknowledgement.
func establish(t *testing.T, conn *websocket.Conn, uid int64) {
	t.Helper()
	sendEnvelope(t, conn, &protocol.Envelope{
		AppID:       protocol.AppLink,
		UID:         uid,
		Token:       "token",
		MessageType: protocol.LinkEstablish,
	})
	reply := readEnvelope(t, conn)
	require.Equal(t, protocol.LinkEstablish, reply.MessageType)
	require.Equal(t, "connection established", reply.Content)
}

func join(t *testing.T, conn *websocket.Conn, uid, room int64) *protocol.Envelope {
	t.Helper()
	sendEnvelope(t, conn, &protocol.Envelope{
		AppID:       protocol.AppChatRoom,
		UID:         uid,
		MessageType: protocol.RoomJoin,
		ToID:        room,
	})
	return readEnvelope(t, conn)
}
