package registry

import (
	"sync"
	"sync/atomic"
)

// Connections maps a user id to exactly one live transport handle.
type Connections struct {
	byUser sync.Map // int64 -> Handle
	count  atomic.Int64
}

// NewConnections returns an empty connection registry.
func NewConnections() *Connections {
	return &Connections{}
}

// Put associates uid with h, replacing any previous association. It is a
// no-op when uid is not a valid id or h is nil.
func (c *Connections) Put(uid int64, h Handle) {
	c.Swap(uid, h)
}

// Swap is Put that also returns the handle it replaced, if any. The
// replacement is a single atomic step for uid.
func (c *Connections) Swap(uid int64, h Handle) (prev Handle, loaded bool) {
	if uid <= 0 || h == nil {
		return nil, false
	}
	old, loaded := c.byUser.Swap(uid, h)
	if !loaded {
		c.count.Add(1)
		return nil, false
	}
	return old.(Handle), true
}

// Remove drops the association for uid if there is one.
func (c *Connections) Remove(uid int64) {
	if _, loaded := c.byUser.LoadAndDelete(uid); loaded {
		c.count.Add(-1)
	}
}

// Get returns the handle registered for uid.
func (c *Connections) Get(uid int64) (Handle, bool) {
	v, ok := c.byUser.Load(uid)
	if !ok {
		return nil, false
	}
	return v.(Handle), true
}

// RemoveByHandle removes every user currently mapped to h and returns their
// ids. It is used when the transport reports closure without an explicit
// disconnect. Users that were re-mapped to another handle meanwhile are left
// alone.
func (c *Connections) RemoveByHandle(h Handle) []int64 {
	if h == nil {
		return nil
	}
	var removed []int64
	c.byUser.Range(func(key, value any) bool {
		if value.(Handle) != h {
			return true
		}
		if c.byUser.CompareAndDelete(key, value) {
			c.count.Add(-1)
			removed = append(removed, key.(int64))
		}
		return true
	})
	return removed
}

// Count returns the number of associations. Liveness is not verified.
func (c *Connections) Count() int {
	return int(c.count.Load())
}

// PruneInactive removes every association whose handle reports an inactive
// transport and returns the affected user ids.
func (c *Connections) PruneInactive() []int64 {
	var pruned []int64
	c.byUser.Range(func(key, value any) bool {
		if value.(Handle).Active() {
			return true
		}
		if c.byUser.CompareAndDelete(key, value) {
			c.count.Add(-1)
			pruned = append(pruned, key.(int64))
		}
		return true
	})
	return pruned
}
