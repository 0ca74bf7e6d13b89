package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
)

// timeLayout is fixed-width so created_at compares correctly as text and
// stays readable by SQLite's date functions.
const timeLayout = "2006-01-02 15:04:05.000000"

func stamp(t time.Time) string { return t.UTC().Format(timeLayout) }

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:beacon_events"`

	ID        int64  `grove:"id,pk"`
	Type      string `grove:"event_type"`
	Data      string `grove:"event_data"` // JSON text
	PageURL   string `grove:"page_url"`
	Referrer  string `grove:"referrer"`
	SessionID string `grove:"session_id"`
	UserAgent string `grove:"user_agent"`
	CreatedAt string `grove:"created_at"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	data := evt.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	return &eventModel{
		ID:        evt.ID,
		Type:      evt.Type,
		Data:      string(raw),
		PageURL:   evt.PageURL,
		Referrer:  evt.Referrer,
		SessionID: evt.SessionID,
		UserAgent: evt.UserAgent,
		CreatedAt: stamp(evt.CreatedAt),
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	created, err := time.ParseInLocation(timeLayout, m.CreatedAt, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", m.CreatedAt, err)
	}
	data := map[string]any{}
	if m.Data != "" {
		if err := json.Unmarshal([]byte(m.Data), &data); err != nil {
			return nil, fmt.Errorf("decode event %d data: %w", m.ID, err)
		}
	}
	return &event.Event{
		Entity:    entity.Entity{CreatedAt: created},
		ID:        m.ID,
		Type:      m.Type,
		Data:      data,
		PageURL:   m.PageURL,
		Referrer:  m.Referrer,
		SessionID: m.SessionID,
		UserAgent: m.UserAgent,
	}, nil
}

func fromEventModels(models []eventModel) ([]*event.Event, error) {
	out := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// --- Aggregate rows ---

type typeCountRow struct {
	Type  string `grove:"event_type"`
	Total int64  `grove:"total"`
}

type valueCountRow struct {
	Value string `grove:"value"`
	Total int64  `grove:"total"`
}

type pairCountRow struct {
	First  string `grove:"first"`
	Second string `grove:"second"`
	Total  int64  `grove:"total"`
}

type bucketRow struct {
	Period string `grove:"period"`
	Total  int64  `grove:"total"`
}

type sumRow struct {
	Total float64 `grove:"total"`
}
