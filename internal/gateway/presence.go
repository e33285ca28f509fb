package gateway

import "time"

// ConnectionRecord is one live (or just-disconnected) session in the
// presence directory.
type ConnectionRecord struct {
	ID       string
	Name     string
	Online   bool
	LastSeen time.Time
}

// Presence is the connection directory: id -> record, in insertion order.
// It is not safe for concurrent use; the hub loop is its only writer.
type Presence struct {
	records map[string]*ConnectionRecord
	order   []string
}

func NewPresence() *Presence {
	return &Presence{records: make(map[string]*ConnectionRecord)}
}

// Register creates and stores a record for a newly connected session.
// Ids come from the transport layer and are assumed unique.
func (p *Presence) Register(id, name string) *ConnectionRecord {
	rec := &ConnectionRecord{
		ID:       id,
		Name:     name,
		Online:   true,
		LastSeen: time.Now(),
	}
	p.records[id] = rec
	p.order = append(p.order, id)
	return rec
}

// MarkOffline stamps the record's last-seen time and flips it offline.
// Removal is the caller's responsibility. Returns nil for unknown ids.
func (p *Presence) MarkOffline(id string) *ConnectionRecord {
	rec, ok := p.records[id]
	if !ok {
		return nil
	}
	rec.Online = false
	rec.LastSeen = time.Now()
	return rec
}

// Remove deletes the record unconditionally. No-op if absent.
func (p *Presence) Remove(id string) {
	if _, ok := p.records[id]; !ok {
		return
	}
	delete(p.records, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// ListAll returns a snapshot of every record in insertion order. Consumers
// must not rely on the ordering.
func (p *Presence) ListAll() []ConnectionRecord {
	out := make([]ConnectionRecord, 0, len(p.order))
	for _, id := range p.order {
		if rec, ok := p.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

func (p *Presence) Len() int {
	return len(p.records)
}
