package event

import "time"

// Granularity selects the bucket width of a time series.
type Granularity string

// Supported granularities.
const (
	Day  Granularity = "day"
	Hour Granularity = "hour"
)

// Bucket label layouts, always UTC.
const (
	DayLayout  = "2006-01-02"
	HourLayout = "2006-01-02 15:00"
)

// ParseGranularity maps free text to a Granularity, defaulting to Day.
func ParseGranularity(s string) Granularity {
	if Granularity(s) == Hour {
		return Hour
	}
	return Day
}

// Order is the creation-time sort direction for Query.
type Order string

// Sort directions.
const (
	Asc  Order = "ASC"
	Desc Order = "DESC"
)

// Query configures the generic filtered event listing. Every filter is
// optional; set filters compose with logical AND.
type Query struct {
	// Types restricts results to these event types. Empty means any type.
	Types []string

	// From and To bound created_at, both inclusive.
	From *time.Time
	To   *time.Time

	// Order is the created_at direction; ties break on ID in the same direction.
	Order Order

	Limit  int
	Offset int
}

// ValueQuery selects the top values of one payload field.
type ValueQuery struct {
	Type  string
	Field string

	// Since is the lower created_at bound. The zero value means all time.
	Since time.Time

	Limit int
}

// PairQuery groups events of one type by two payload fields.
type PairQuery struct {
	Type   string
	First  string
	Second string
	Since  time.Time
	Limit  int
}

// Filter matches events of one type created at or after Since, optionally
// requiring a payload field to equal a value.
type Filter struct {
	Type  string
	Since time.Time

	// Field and Equals match the text form of a payload field. Ignored when
	// Field is empty.
	Field  string
	Equals string
}

// TypeCount is the number of events of one type.
type TypeCount struct {
	Type  string `json:"event_type"`
	Total int64  `json:"total"`
}

// ValueCount is the frequency of one distinct value.
type ValueCount struct {
	Value string `json:"value"`
	Total int64  `json:"total"`
}

// PairCount is the frequency of one distinct pair of payload values.
type PairCount struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Total  int64  `json:"total"`
}

// Bucket is one period of a time series.
type Bucket struct {
	Period string `json:"period"`
	Count  int64  `json:"count"`
}
