package mongo

import (
	"maps"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:beacon_events"`

	ID        int64          `grove:"id,pk"      bson:"_id"`
	Type      string         `grove:"event_type" bson:"event_type"`
	Data      map[string]any `grove:"event_data" bson:"event_data"`
	PageURL   string         `grove:"page_url"   bson:"page_url"`
	Referrer  string         `grove:"referrer"   bson:"referrer"`
	SessionID string         `grove:"session_id" bson:"session_id"`
	UserAgent string         `grove:"user_agent" bson:"user_agent"`
	CreatedAt time.Time      `grove:"created_at" bson:"created_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	data := maps.Clone(evt.Data)
	if data == nil {
		data = map[string]any{}
	}
	return &eventModel{
		ID:        evt.ID,
		Type:      evt.Type,
		Data:      data,
		PageURL:   evt.PageURL,
		Referrer:  evt.Referrer,
		SessionID: evt.SessionID,
		UserAgent: evt.UserAgent,
		CreatedAt: evt.CreatedAt,
	}
}

func fromEventModel(m *eventModel) *event.Event {
	data := make(map[string]any, len(m.Data))
	for k, v := range m.Data {
		// BSON decodes small integers as int32.
		if n, ok := v.(int32); ok {
			v = int64(n)
		}
		data[k] = v
	}
	return &event.Event{
		Entity:    entity.Entity{CreatedAt: m.CreatedAt.UTC()},
		ID:        m.ID,
		Type:      m.Type,
		Data:      data,
		PageURL:   m.PageURL,
		Referrer:  m.Referrer,
		SessionID: m.SessionID,
		UserAgent: m.UserAgent,
	}
}

func fromEventModels(models []eventModel) []*event.Event {
	out := make([]*event.Event, len(models))
	for i := range models {
		out[i] = fromEventModel(&models[i])
	}
	return out
}

// counterModel holds the last ID issued for a collection.
type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// --- Aggregate rows ---

type valueCountRow struct {
	Value string `bson:"_id"`
	Total int64  `bson:"total"`
}

type pairKey struct {
	First  string `bson:"first"`
	Second string `bson:"second"`
}

type pairCountRow struct {
	Key   pairKey `bson:"_id"`
	Total int64   `bson:"total"`
}

type sumRow struct {
	Total float64 `bson:"total"`
}
