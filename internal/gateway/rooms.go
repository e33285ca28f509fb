package gateway

import "sort"

// Rooms is the room directory: room id -> set of member connection ids.
// Rooms are created implicitly on first join and pruned when the last
// member leaves. Not safe for concurrent use; the hub loop owns it.
// None of these operations send anything on the network.
type Rooms struct {
	rooms map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]struct{})}
}

// Join adds the connection to the room, creating the room if needed.
// Returns false when the connection was already a member.
func (r *Rooms) Join(roomID, connID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}
	return true
}

// Leave removes the connection from the room and prunes the room when it
// empties. Returns false when the connection was not a member.
func (r *Rooms) Leave(roomID, connID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// LeaveAll removes the connection from every room it belongs to and
// returns the affected room ids, sorted for deterministic fan-out.
func (r *Rooms) LeaveAll(connID string) []string {
	var affected []string
	for roomID, members := range r.rooms {
		if _, exists := members[connID]; exists {
			affected = append(affected, roomID)
		}
	}
	sort.Strings(affected)
	for _, roomID := range affected {
		r.Leave(roomID, connID)
	}
	return affected
}

// MembersOf returns a snapshot of the room's member ids. Unknown rooms
// yield an empty slice, not an error.
func (r *Rooms) MembersOf(roomID string) []string {
	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Rooms) Len() int {
	return len(r.rooms)
}

// Snapshot copies the full room -> members mapping for status reporting.
func (r *Rooms) Snapshot() map[string][]string {
	out := make(map[string][]string, len(r.rooms))
	for roomID := range r.rooms {
		out[roomID] = r.MembersOf(roomID)
	}
	return out
}
