// Package metric evaluates declarative business metrics over the event table.
//
// Several unrelated producers record into the same events, so composite
// metrics are described as data: a named Set of count, sum and ratio
// definitions evaluated against any event.Store.
package metric

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xraph/beacon/event"
)

// Sentinel errors returned by the metric package.
var (
	// ErrUnknownSet is returned when a metric set is not registered.
	ErrUnknownSet = errors.New("metric: unknown metric set")

	// ErrInvalidDefinition is returned when a set or definition is malformed.
	ErrInvalidDefinition = errors.New("metric: invalid definition")
)

// Kind is the aggregation a Definition performs.
type Kind string

// Supported kinds.
const (
	// Count counts events of EventType, optionally where Field equals Equals.
	Count Kind = "count"

	// Sum adds the numeric SumField of matching events.
	Sum Kind = "sum"

	// Ratio is Numerator divided by the sum of Denominator, as a percentage
	// rounded to two decimals. Both refer to earlier metrics in the set.
	Ratio Kind = "ratio"
)

// Definition describes one named metric.
type Definition struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	EventType   string   `json:"event_type,omitempty"`
	Field       string   `json:"field,omitempty"`
	Equals      string   `json:"equals,omitempty"`
	SumField    string   `json:"sum_field,omitempty"`
	Numerator   string   `json:"numerator,omitempty"`
	Denominator []string `json:"denominator,omitempty"`
}

// Set is a named group of metrics evaluated together.
type Set struct {
	Name    string       `json:"name"`
	Metrics []Definition `json:"metrics"`
}

// Result maps metric names to values.
type Result map[string]float64

// Source is the subset of event.Store the evaluator needs.
type Source interface {
	Count(ctx context.Context, f event.Filter) (int64, error)
	Sum(ctx context.Context, f event.Filter, field string) (float64, error)
}

// Validate checks names, kinds, payload fields and ratio references.
func (s Set) Validate() error {
	if !event.ValidField(s.Name) {
		return fmt.Errorf("%w: set name %q", ErrInvalidDefinition, s.Name)
	}
	if len(s.Metrics) == 0 {
		return fmt.Errorf("%w: set %q has no metrics", ErrInvalidDefinition, s.Name)
	}

	seen := make(map[string]bool, len(s.Metrics))
	for _, d := range s.Metrics {
		if !event.ValidField(d.Name) {
			return fmt.Errorf("%w: metric name %q", ErrInvalidDefinition, d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate metric %q", ErrInvalidDefinition, d.Name)
		}

		switch d.Kind {
		case Count, Sum:
			if d.EventType == "" {
				return fmt.Errorf("%w: metric %q needs an event_type", ErrInvalidDefinition, d.Name)
			}
			if d.Field != "" && !event.ValidField(d.Field) {
				return fmt.Errorf("%w: metric %q field %q", ErrInvalidDefinition, d.Name, d.Field)
			}
			if d.Kind == Sum && !event.ValidField(d.SumField) {
				return fmt.Errorf("%w: metric %q sum_field %q", ErrInvalidDefinition, d.Name, d.SumField)
			}
		case Ratio:
			if !seen[d.Numerator] {
				return fmt.Errorf("%w: metric %q numerator %q must be defined earlier", ErrInvalidDefinition, d.Name, d.Numerator)
			}
			if len(d.Denominator) == 0 {
				return fmt.Errorf("%w: metric %q needs a denominator", ErrInvalidDefinition, d.Name)
			}
			for _, ref := range d.Denominator {
				if !seen[ref] {
					return fmt.Errorf("%w: metric %q denominator %q must be defined earlier", ErrInvalidDefinition, d.Name, ref)
				}
			}
		default:
			return fmt.Errorf("%w: metric %q kind %q", ErrInvalidDefinition, d.Name, d.Kind)
		}
		seen[d.Name] = true
	}
	return nil
}

// Evaluate computes every metric of s over events created at or after since.
func (s Set) Evaluate(ctx context.Context, src Source, since time.Time) (Result, error) {
	res := make(Result, len(s.Metrics))
	for _, d := range s.Metrics {
		filter := event.Filter{
			Type:   d.EventType,
			Since:  since,
			Field:  d.Field,
			Equals: d.Equals,
		}

		switch d.Kind {
		case Count:
			n, err := src.Count(ctx, filter)
			if err != nil {
				return nil, fmt.Errorf("metric %s: %w", d.Name, err)
			}
			res[d.Name] = float64(n)
		case Sum:
			v, err := src.Sum(ctx, filter, d.SumField)
			if err != nil {
				return nil, fmt.Errorf("metric %s: %w", d.Name, err)
			}
			res[d.Name] = v
		case Ratio:
			var denom float64
			for _, ref := range d.Denominator {
				denom += res[ref]
			}
			res[d.Name] = Percent(res[d.Numerator], denom)
		}
	}
	return res, nil
}

// Percent returns part/whole*100 rounded to two decimals, or 0 when whole is 0.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(part/whole*100*100) / 100
}

// Spawn is the built-in hosting metrics set: provisioning outcomes, credit
// purchases and domain renewals.
func Spawn() Set {
	return Set{
		Name: "spawn",
		Metrics: []Definition{
			{Name: "signups", Kind: Count, EventType: "spawn_provisioning", Field: "status", Equals: "complete"},
			{Name: "failed", Kind: Count, EventType: "spawn_provisioning", Field: "status", Equals: "failed"},
			{Name: "success_rate", Kind: Ratio, Numerator: "signups", Denominator: []string{"signups", "failed"}},
			{Name: "credits_purchased", Kind: Sum, EventType: "spawn_credits", SumField: "credits"},
			{Name: "domains_renewed", Kind: Count, EventType: "spawn_domain"},
		},
	}
}
