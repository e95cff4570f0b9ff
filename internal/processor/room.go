package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// RoomDirectory answers whether a room record exists and accepts members.
// It is backed by the external room store.
type RoomDirectory interface {
	Available(ctx context.Context, roomID int64) (bool, error)
}

// BroadcastResult summarizes one room broadcast.
type BroadcastResult struct {
	Delivered int
	Pruned    int
	Failed    int
}

// Room owns join, send and leave on the chat room business line. The target
// room id travels in the envelope's toId field.
type Room struct {
	conns  *registry.Connections
	rooms  *registry.Rooms
	dir    RoomDirectory
	logger *slog.Logger
}

// NewRoom returns a Room processor bound to reg. dir may be nil, in which
// case any room id is accepted.
func NewRoom(reg *registry.Registry, dir RoomDirectory, logger *slog.Logger) *Room {
	return &Room{
		conns:  reg.Conns,
		rooms:  reg.Rooms,
		dir:    dir,
		logger: logger.With(slog.String("component", "room_processor")),
	}
}

// Process handles one chat room envelope.
func (r *Room) Process(ctx context.Context, h registry.Handle, env *protocol.Envelope) {
	switch env.MessageType {
	case protocol.RoomJoin:
		r.join(ctx, h, env)
	case protocol.RoomSend:
		r.Broadcast(env)
	case protocol.RoomLeave:
		r.leave(h, env)
	default:
		r.logger.Warn("unknown chat room message type",
			slog.Int("message_type", env.MessageType),
			slog.Int64("uid", env.UID))
	}
}

func (r *Room) join(ctx context.Context, h registry.Handle, env *protocol.Envelope) {
	if env.UID <= 0 || env.ToID <= 0 {
		r.logger.Warn("join with missing fields", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		return
	}

	if r.dir != nil {
		ok, err := r.dir.Available(ctx, env.ToID)
		if err != nil {
			r.logger.Warn("room lookup failed", slog.Int64("room", env.ToID), slog.Any("error", err))
		}
		if !ok {
			r.reply(h, env, protocol.RoomJoin, fmt.Sprintf("ERROR: room %d is not available", env.ToID))
			return
		}
	}

	added := r.rooms.AddMember(env.ToID, env.UID)
	r.conns.Put(env.UID, h)

	if !added {
		r.logger.Info("user already in room", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		r.reply(h, env, protocol.RoomJoin, fmt.Sprintf("already a member of room %d", env.ToID))
		return
	}
	r.logger.Info("user joined room", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
	r.reply(h, env, protocol.RoomJoin, fmt.Sprintf("joined room %d", env.ToID))
}

// Broadcast relays a send envelope to every other member of its room.
// Members without a live transport are pruned from the room and skipped.
// Nothing is reported back to the sender.
func (r *Room) Broadcast(env *protocol.Envelope) BroadcastResult {
	var res BroadcastResult
	if env.UID <= 0 || env.ToID <= 0 || env.Content == "" {
		r.logger.Warn("send with missing fields", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		return res
	}

	members, ok := r.rooms.Members(env.ToID)
	if !ok {
		r.logger.Warn("send to room without members", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		return res
	}

	frame, err := protocol.Encode(&protocol.Envelope{
		AppID:       env.AppID,
		UID:         env.UID,
		Compression: env.Compression,
		Encryption:  env.Encryption,
		MessageType: protocol.RoomSend,
		ToID:        env.ToID,
		Content:     env.Content,
		TimeStamp:   protocol.Now(),
	})
	if err != nil {
		r.logger.Error("encode broadcast", slog.Int64("room", env.ToID), slog.Any("error", err))
		return res
	}

	for _, uid := range members {
		if uid == env.UID {
			continue
		}
		h, ok := r.conns.Get(uid)
		if !ok || !h.Active() {
			if r.rooms.RemoveMember(env.ToID, uid) {
				res.Pruned++
				r.logger.Info("pruned stale room member", slog.Int64("uid", uid), slog.Int64("room", env.ToID))
			}
			continue
		}
		if err := h.Write(frame, nil); err != nil {
			res.Failed++
			r.logger.Warn("broadcast write failed", slog.Int64("uid", uid), slog.Int64("room", env.ToID), slog.Any("error", err))
			continue
		}
		res.Delivered++
	}

	r.logger.Info("room broadcast complete",
		slog.Int64("room", env.ToID),
		slog.Int64("sender", env.UID),
		slog.Int("delivered", res.Delivered),
		slog.Int("pruned", res.Pruned),
		slog.Int("failed", res.Failed))
	return res
}

func (r *Room) leave(h registry.Handle, env *protocol.Envelope) {
	if env.UID <= 0 || env.ToID <= 0 {
		r.logger.Warn("leave with missing fields", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		return
	}

	if !r.rooms.RemoveMember(env.ToID, env.UID) {
		r.logger.Info("leave from non-member", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
		return
	}
	r.logger.Info("user left room", slog.Int64("uid", env.UID), slog.Int64("room", env.ToID))
	r.reply(h, env, protocol.RoomLeave, fmt.Sprintf("left room %d", env.ToID))
}

func (r *Room) reply(h registry.Handle, env *protocol.Envelope, messageType int, content string) {
	if err := write(h, protocol.Reply(env, messageType, content), nil); err != nil {
		r.logger.Warn("room reply failed", slog.Int64("uid", env.UID), slog.Any("error", err))
	}
}
