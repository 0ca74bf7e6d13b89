package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:beacon_events"`

	ID        int64           `grove:"id,pk"`
	Type      string          `grove:"event_type"`
	Data      json.RawMessage `grove:"event_data,type:jsonb"`
	PageURL   string          `grove:"page_url"`
	Referrer  string          `grove:"referrer"`
	SessionID string          `grove:"session_id"`
	UserAgent string          `grove:"user_agent"`
	CreatedAt time.Time       `grove:"created_at"`
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
		Data:      raw,
		PageURL:   evt.PageURL,
		Referrer:  evt.Referrer,
		SessionID: evt.SessionID,
		UserAgent: evt.UserAgent,
		CreatedAt: evt.CreatedAt,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	data := map[string]any{}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &data); err != nil {
			return nil, fmt.Errorf("decode event %d data: %w", m.ID, err)
		}
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
