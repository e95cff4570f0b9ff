// Package roomstore provides a SQLite-backed room record store. The relay
// only reads records to decide whether a room accepts members; creation and
// status changes serve seeding and operators.
package roomstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a room record does not exist.
var ErrNotFound = errors.New("roomstore: room not found")

// Status is a room's lifecycle state.
type Status int

// Room statuses.
const (
	StatusActive    Status = 0
	StatusArchived  Status = 1
	StatusDisbanded Status = 2
)

// Type distinguishes public and private rooms.
type Type string

// Room types.
const (
	TypePublic  Type = "public"
	TypePrivate Type = "private"
)

// Room is one room record.
type Room struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	Type        Type
	Status      Status
	CreatedAt   time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_rooms (
	room_id     INTEGER PRIMARY KEY,
	room_name   TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	owner_id    INTEGER NOT NULL DEFAULT 0,
	room_type   TEXT    NOT NULL DEFAULT 'public',
	status      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);`

// Store persists room records in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts a room record. A zero CreatedAt is stamped with the current
// time and an empty Type defaults to public.
func (s *Store) Create(ctx context.Context, room Room) error {
	if room.ID <= 0 {
		return fmt.Errorf("room id is required")
	}
	name := strings.TrimSpace(room.Name)
	if name == "" {
		return fmt.Errorf("room name is required")
	}
	if room.Type == "" {
		room.Type = TypePublic
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO chat_rooms (room_id, room_name, description, owner_id, room_type, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		room.ID, name, room.Description, room.OwnerID, string(room.Type), int(room.Status), room.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert room %d: %w", room.ID, err)
	}
	return nil
}

// Get loads one room record.
func (s *Store) Get(ctx context.Context, id int64) (Room, error) {
	var (
		room      Room
		roomType  string
		status    int
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT room_id, room_name, description, owner_id, room_type, status, created_at
		 FROM chat_rooms WHERE room_id = ?`, id).
		Scan(&room.ID, &room.Name, &room.Description, &room.OwnerID, &roomType, &status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room %d: %w", id, err)
	}
	room.Type = Type(roomType)
	room.Status = Status(status)
	room.CreatedAt = time.UnixMilli(createdAt).UTC()
	return room, nil
}

// SetStatus updates a room's status.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE chat_rooms SET status = ? WHERE room_id = ?`, int(status), id)
	if err != nil {
		return fmt.Errorf("update room %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Available reports whether the room exists and is active.
func (s *Store) Available(ctx context.Context, id int64) (bool, error) {
	room, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return room.Status == StatusActive, nil
}
