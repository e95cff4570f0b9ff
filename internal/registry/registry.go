// Package registry holds the relay's shared live state: which transport each
// user is reachable on and which users belong to each room.
//
// Both maps are safe for concurrent use from every connection worker. Every
// operation is atomic for a single key; nothing here takes a global lock or
// couples updates across keys.
package registry

// Handle is a non-owning reference to a client transport. The registry only
// uses it to push frames and to test liveness; closing it is always an
// explicit request made by a processor.
//
// Implementations must be comparable (pointer types in practice) because
// handle-scoped removals compare handles by identity.
type Handle interface {
	// ID returns a stable identifier for logs.
	ID() string
	// Active reports whether the transport is still open.
	Active() bool
	// Write queues frame for delivery without blocking on I/O. done, when
	// non-nil, runs once the frame has been flushed or has failed.
	Write(frame []byte, done func(error)) error
	// Close tears down the transport. It is safe to call more than once.
	Close() error
}

// Registry owns the connection and room-membership maps. It is constructed
// once and passed by reference to the dispatcher and processors.
type Registry struct {
	Conns *Connections
	Rooms *Rooms
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		Conns: NewConnections(),
		Rooms: NewRooms(),
	}
}
