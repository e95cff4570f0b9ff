// Package protocol defines the JSON message envelope exchanged over the relay
// WebSocket and the codec that turns text frames into envelopes and back.
package protocol

import "time"

// AppID identifies a business line. It is the coarse routing key used by the
// dispatcher.
type AppID int

// Business lines.
const (
	AppLink     AppID = 0
	AppChatRoom AppID = 1
)

// String returns a short label for logs and span names.
func (a AppID) String() string {
	switch a {
	case AppLink:
		return "link"
	case AppChatRoom:
		return "chatroom"
	default:
		return "unknown"
	}
}

// Link line subtypes.
const (
	LinkEstablish  = 0
	LinkDisconnect = 1
	LinkHeartbeat  = 2
)

// Chat room line subtypes.
const (
	RoomJoin  = 0
	RoomSend  = 1
	RoomLeave = 2
)

// Envelope is the unit of wire exchange. Compression and Encryption are
// carried through untouched.
type Envelope struct {
	AppID       AppID  `json:"appId"`
	UID         int64  `json:"uid"`
	Token       string `json:"token,omitempty"`
	Compression int    `json:"compression,omitempty"`
	Encryption  int    `json:"encryption,omitempty"`
	MessageType int    `json:"messageType"`
	ToID        int64  `json:"toId,omitempty"`
	Content     string `json:"content,omitempty"`
	TimeStamp   int64  `json:"timeStamp"`
}

// Now returns the timestamp stamped on server-built envelopes, in
// milliseconds since the Unix epoch. Tests may replace it.
var Now = func() int64 {
	return time.Now().UnixMilli()
}

// Reply builds a response to req on the same business line and user, with the
// given subtype and status content and a fresh timestamp. The target id is
// echoed so room responses carry the room they refer to.
func Reply(req *Envelope, messageType int, content string) *Envelope {
	return &Envelope{
		AppID:       req.AppID,
		UID:         req.UID,
		MessageType: messageType,
		ToID:        req.ToID,
		Content:     content,
		TimeStamp:   Now(),
	}
}
