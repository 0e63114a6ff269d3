// Package botstore keeps the persisted bot records. The engine treats it as a
// simple keyed store: no durability or transactional guarantees are assumed,
// and partial updates are last-write-wins at field level.
package botstore

import (
	"time"

	"botswarm.ai/internal/protocol"
)

type Record struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Status          protocol.BotStatus `json:"status"`
	Position        *protocol.Vec3     `json:"position,omitempty"`
	Health          float64            `json:"health"`
	Food            float64            `json:"food"`
	Inventory       []protocol.Slot    `json:"inventory"`
	UptimeSeconds   int64              `json:"uptime_seconds"`
	CreatedAt       time.Time          `json:"created_at"`
	LastConnectedAt time.Time          `json:"last_connected_at,omitempty"`
}

// Patch is a field-level partial update; nil fields are left untouched.
type Patch struct {
	Name            *string
	Status          *protocol.BotStatus
	Position        *protocol.Vec3
	Health          *float64
	Food            *float64
	Inventory       *[]protocol.Slot
	UptimeSeconds   *int64
	LastConnectedAt *time.Time
}

type Store interface {
	Get(id string) (Record, bool)
	All() []Record
	Create(name string) (Record, error)
	Update(id string, p Patch) (Record, bool)
	Delete(id string) bool
}

func (r *Record) apply(p Patch) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Position != nil {
		pos := *p.Position
		r.Position = &pos
	}
	if p.Health != nil {
		r.Health = *p.Health
	}
	if p.Food != nil {
		r.Food = *p.Food
	}
	if p.Inventory != nil {
		r.Inventory = append([]protocol.Slot(nil), (*p.Inventory)...)
	}
	if p.UptimeSeconds != nil {
		r.UptimeSeconds = *p.UptimeSeconds
	}
	if p.LastConnectedAt != nil {
		r.LastConnectedAt = *p.LastConnectedAt
	}
}

func (r Record) clone() Record {
	out := r
	if r.Position != nil {
		pos := *r.Position
		out.Position = &pos
	}
	out.Inventory = append([]protocol.Slot(nil), r.Inventory...)
	return out
}
