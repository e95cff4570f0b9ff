package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Tyrowin/relaychat/internal/roomstore"
)

// parseRoomSeed parses an "id:name" seed specification.
func parseRoomSeed(spec string) (roomstore.Room, error) {
	idPart, name, ok := strings.Cut(spec, ":")
	if !ok {
		return roomstore.Room{}, fmt.Errorf("room seed %q: want id:name", spec)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil || id <= 0 {
		return roomstore.Room{}, fmt.Errorf("room seed %q: invalid id", spec)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return roomstore.Room{}, fmt.Errorf("room seed %q: name is required", spec)
	}
	return roomstore.Room{ID: id, Name: name, Status: roomstore.StatusActive}, nil
}

type roomSeeder interface {
	Get(ctx context.Context, id int64) (roomstore.Room, error)
	Create(ctx context.Context, room roomstore.Room) error
}

// seedRooms creates each seeded room that does not exist yet.
func seedRooms(ctx context.Context, store roomSeeder, specs []string) error {
	for _, spec := range specs {
		room, err := parseRoomSeed(spec)
		if err != nil {
			return err
		}

		_, err = store.Get(ctx, room.ID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, roomstore.ErrNotFound):
			return err
		}

		if err := store.Create(ctx, room); err != nil {
			return err
		}
	}
	return nil
}
