package processor

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

var errQueueClosed = errors.New("queue closed")

// fakeHandle records frames and close calls in order. With deferDone set,
// write completions are held until flush is called.
type fakeHandle struct {
	mu        sync.Mutex
	id        string
	closed    bool
	deferDone bool
	writeErr  error
	frames    [][]byte
	events    []string
	pending   []func(error)
}

func newFakeHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeHandle) Write(frame []byte, done func(error)) error {
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	f.frames = append(f.frames, frame)
	f.events = append(f.events, "write")
	if f.deferDone {
		if done != nil {
			f.pending = append(f.pending, done)
		}
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	if done != nil {
		done(nil)
	}
	return nil
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.events = append(f.events, "close")
	return nil
}

func (f *fakeHandle) flush() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, done := range pending {
		done(nil)
	}
}

func (f *fakeHandle) isClosed() bool {
	return !f.Active()
}

func (f *fakeHandle) envelopes(t *testing.T) []*protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (f *fakeHandle) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
