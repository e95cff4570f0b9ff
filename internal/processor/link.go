package processor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// Link owns the per-user connection lifecycle on the link business line.
type Link struct {
	conns  *registry.Connections
	logger *slog.Logger
}

// NewLink returns a Link processor bound to reg.
func NewLink(reg *registry.Registry, logger *slog.Logger) *Link {
	return &Link{
		conns:  reg.Conns,
		logger: logger.With(slog.String("component", "link_processor")),
	}
}

// Process handles one link envelope.
func (l *Link) Process(_ context.Context, h registry.Handle, env *protocol.Envelope) {
	switch env.MessageType {
	case protocol.LinkEstablish:
		l.establish(h, env)
	case protocol.LinkDisconnect:
		l.disconnect(h, env)
	case protocol.LinkHeartbeat:
		l.heartbeat(h, env)
	default:
		l.logger.Warn("unknown link message type",
			slog.Int("message_type", env.MessageType),
			slog.Int64("uid", env.UID))
	}
}

func (l *Link) establish(h registry.Handle, env *protocol.Envelope) {
	if env.UID <= 0 {
		l.logger.Warn("establish without uid", slog.String("conn", h.ID()))
		l.replyError(h, env, "uid is required")
		return
	}
	// Token validity belongs to the auth boundary; here it only has to be present.
	if strings.TrimSpace(env.Token) == "" {
		l.logger.Warn("establish without token", slog.Int64("uid", env.UID))
		l.replyError(h, env, "token is required")
		return
	}

	if prev, loaded := l.conns.Swap(env.UID, h); loaded && prev != h {
		if prev.Active() {
			l.logger.Warn("user already connected, closing previous connection",
				slog.Int64("uid", env.UID),
				slog.String("previous", prev.ID()),
				slog.String("conn", h.ID()))
		}
		_ = prev.Close()
	}

	l.logger.Info("connection established", slog.Int64("uid", env.UID), slog.String("conn", h.ID()))
	if err := write(h, protocol.Reply(env, protocol.LinkEstablish, "connection established"), nil); err != nil {
		l.logger.Warn("establish reply failed", slog.Int64("uid", env.UID), slog.Any("error", err))
	}
}

func (l *Link) disconnect(h registry.Handle, env *protocol.Envelope) {
	if env.UID <= 0 {
		l.logger.Warn("disconnect without uid", slog.String("conn", h.ID()))
		return
	}

	l.conns.Remove(env.UID)
	l.logger.Info("user disconnecting", slog.Int64("uid", env.UID), slog.String("conn", h.ID()))

	uid := env.UID
	err := write(h, protocol.Reply(env, protocol.LinkDisconnect, "connection closed"), func(err error) {
		if err != nil {
			l.logger.Warn("disconnect reply not delivered", slog.Int64("uid", uid), slog.Any("error", err))
		}
		_ = h.Close()
		l.logger.Info("connection closed", slog.Int64("uid", uid), slog.String("conn", h.ID()))
	})
	if err != nil {
		// Nothing was queued, so the completion callback will never run.
		l.logger.Warn("disconnect reply failed", slog.Int64("uid", uid), slog.Any("error", err))
		_ = h.Close()
	}
}

func (l *Link) heartbeat(h registry.Handle, env *protocol.Envelope) {
	if env.UID <= 0 {
		l.logger.Warn("heartbeat without uid", slog.String("conn", h.ID()))
		return
	}

	if cur, ok := l.conns.Get(env.UID); !ok || !cur.Active() {
		l.logger.Warn("heartbeat from unregistered user, re-registering",
			slog.Int64("uid", env.UID), slog.String("conn", h.ID()))
		l.conns.Put(env.UID, h)
	}

	l.logger.Debug("heartbeat", slog.Int64("uid", env.UID), slog.String("conn", h.ID()))
	if err := write(h, protocol.Reply(env, protocol.LinkHeartbeat, "pong"), nil); err != nil {
		l.logger.Warn("heartbeat reply failed", slog.Int64("uid", env.UID), slog.Any("error", err))
	}
}

func (l *Link) replyError(h registry.Handle, env *protocol.Envelope, msg string) {
	if err := write(h, protocol.Reply(env, env.MessageType, "ERROR: "+msg), nil); err != nil {
		l.logger.Warn("error reply failed", slog.Int64("uid", env.UID), slog.Any("error", err))
	}
}

// HandleClosed cleans up after a transport that closed without an explicit
// disconnect. It bypasses the link state machine.
func (l *Link) HandleClosed(h registry.Handle) {
	for _, uid := range l.conns.RemoveByHandle(h) {
		l.logger.Info("connection lost, removed user mapping", slog.Int64("uid", uid), slog.String("conn", h.ID()))
	}
}
