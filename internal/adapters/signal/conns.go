package signal

import (
	"sync"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
)

type connEntry struct {
	conn  core.SignalConnection
	user  domain.UserID
	rooms map[domain.RoomID]struct{}
}

// connTable tracks open connections independently of room membership.
type connTable struct {
	mu      sync.RWMutex
	entries map[core.ConnID]*connEntry
}

func newConnTable() *connTable {
	return &connTable{entries: make(map[core.ConnID]*connEntry)}
}

func (t *connTable) add(c core.SignalConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[c.ID()] = &connEntry{conn: c, rooms: make(map[domain.RoomID]struct{})}
}

// remove returns the user last authenticated on the connection and the rooms joined through it.
func (t *connTable) remove(id core.ConnID) (domain.UserID, []domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return "", nil
	}
	delete(t.entries, id)
	rooms := make([]domain.RoomID, 0, len(e.rooms))
	for r := range e.rooms {
		rooms = append(rooms, r)
	}
	return e.user, rooms
}

// authenticate records the user behind the connection. A different user on the same
// connection starts with an empty room set.
func (t *connTable) authenticate(id core.ConnID, user domain.UserID) (prev domain.UserID, prevRooms []domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.user == user {
		return "", nil
	}
	prev = e.user
	for r := range e.rooms {
		prevRooms = append(prevRooms, r)
	}
	e.user = user
	e.rooms = make(map[domain.RoomID]struct{})
	return prev, prevRooms
}

func (t *connTable) joined(id core.ConnID, room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		e.rooms[room] = struct{}{}
	}
}

func (t *connTable) left(id core.ConnID, room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		delete(e.rooms, room)
	}
}

func (t *connTable) all() []core.SignalConnection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.conn)
	}
	return out
}

// ofUsers returns the connections authenticated as any of users.
func (t *connTable) ofUsers(users map[domain.UserID]struct{}) []core.SignalConnection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []core.SignalConnection
	for _, e := range t.entries {
		if _, ok := users[e.user]; ok {
			out = append(out, e.conn)
		}
	}
	return out
}

func (t *connTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *connTable) forgetRoom(room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		delete(e.rooms, room)
	}
}
