package registry

import (
	"slices"
	"sync"
)

type memberSet struct {
	mu      sync.Mutex
	members map[int64]struct{}
}

// Rooms maps a room id to the set of member user ids. A room's set is created
// on first join and is never destroyed here; room records live elsewhere.
type Rooms struct {
	byRoom sync.Map // int64 -> *memberSet
}

// NewRooms returns an empty membership registry.
func NewRooms() *Rooms {
	return &Rooms{}
}

func (r *Rooms) set(roomID int64, create bool) *memberSet {
	if v, ok := r.byRoom.Load(roomID); ok {
		return v.(*memberSet)
	}
	if !create {
		return nil
	}
	v, _ := r.byRoom.LoadOrStore(roomID, &memberSet{members: make(map[int64]struct{})})
	return v.(*memberSet)
}

// AddMember adds uid to the room and reports whether the set changed. Adding
// an existing member returns false.
func (r *Rooms) AddMember(roomID, uid int64) bool {
	s := r.set(roomID, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[uid]; ok {
		return false
	}
	s.members[uid] = struct{}{}
	return true
}

// Members returns a sorted snapshot of the room's members. The second result
// is false when the room has no tracked members.
func (r *Rooms) Members(roomID int64) ([]int64, bool) {
	s := r.set(roomID, false)
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.members) == 0 {
		return nil, false
	}
	out := make([]int64, 0, len(s.members))
	for uid := range s.members {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out, true
}

// RemoveMember removes uid from the room and reports whether it was a member.
// Unknown rooms and users are not an error.
func (r *Rooms) RemoveMember(roomID, uid int64) bool {
	s := r.set(roomID, false)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[uid]; !ok {
		return false
	}
	delete(s.members, uid)
	return true
}

// Count returns the number of rooms that have ever had a member.
func (r *Rooms) Count() int {
	n := 0
	r.byRoom.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
