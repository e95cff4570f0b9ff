// Package processor implements the two business lines of the relay: the link
// line (establish, disconnect, heartbeat) and the chat room line (join, send,
// leave). Processors are stateless; all state lives in the registry.
package processor

import (
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// write encodes env and queues it on h. done runs after the frame is flushed.
func write(h registry.Handle, env *protocol.Envelope, done func(error)) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if frame == nil {
		return nil
	}
	return h.Write(frame, done)
}
