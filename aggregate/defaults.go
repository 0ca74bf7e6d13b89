package aggregate

// Defaults holds the value each clamped parameter falls back to when a
// caller passes zero or a negative number.
type Defaults struct {
	CountDays     int    `json:"count_days" mapstructure:"count_days"`
	SearchLimit   int    `json:"search_limit" mapstructure:"search_limit"`
	ValueDays     int    `json:"value_days" mapstructure:"value_days"`
	ValueLimit    int    `json:"value_limit" mapstructure:"value_limit"`
	ReferrerDays  int    `json:"referrer_days" mapstructure:"referrer_days"`
	ReferrerLimit int    `json:"referrer_limit" mapstructure:"referrer_limit"`
	RecentLimit   int    `json:"recent_limit" mapstructure:"recent_limit"`
	QueryLimit    int    `json:"query_limit" mapstructure:"query_limit"`
	MaxQueryLimit int    `json:"max_query_limit" mapstructure:"max_query_limit"`
	NavDays       int    `json:"nav_days" mapstructure:"nav_days"`
	NavLimit      int    `json:"nav_limit" mapstructure:"nav_limit"`
	SeriesType    string `json:"series_type" mapstructure:"series_type"`
	SeriesDays    int    `json:"series_days" mapstructure:"series_days"`
	FunnelDays    int    `json:"funnel_days" mapstructure:"funnel_days"`
	Funnel        Funnel `json:"funnel" mapstructure:"funnel"`
	MetricDays    int    `json:"metric_days" mapstructure:"metric_days"`
}

// DefaultDefaults returns the documented defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		CountDays:     7,
		SearchLimit:   10,
		ValueDays:     30,
		ValueLimit:    10,
		ReferrerDays:  30,
		ReferrerLimit: 10,
		RecentLimit:   20,
		QueryLimit:    50,
		MaxQueryLimit: 1000,
		NavDays:       30,
		NavLimit:      20,
		SeriesType:    "page_view",
		SeriesDays:    30,
		FunnelDays:    30,
		Funnel:        Funnel{Start: "smi_click", Completion: "smi_payment"},
		MetricDays:    30,
	}
}

// withFallbacks fills zero fields of d from DefaultDefaults so a partially
// configured Defaults never yields a non-positive window.
func (d Defaults) withFallbacks() Defaults {
	def := DefaultDefaults()
	fill := func(v *int, fallback int) {
		if *v < 1 {
			*v = fallback
		}
	}
	fill(&d.CountDays, def.CountDays)
	fill(&d.SearchLimit, def.SearchLimit)
	fill(&d.ValueDays, def.ValueDays)
	fill(&d.ValueLimit, def.ValueLimit)
	fill(&d.ReferrerDays, def.ReferrerDays)
	fill(&d.ReferrerLimit, def.ReferrerLimit)
	fill(&d.RecentLimit, def.RecentLimit)
	fill(&d.QueryLimit, def.QueryLimit)
	fill(&d.MaxQueryLimit, def.MaxQueryLimit)
	fill(&d.NavDays, def.NavDays)
	fill(&d.NavLimit, def.NavLimit)
	fill(&d.SeriesDays, def.SeriesDays)
	fill(&d.FunnelDays, def.FunnelDays)
	fill(&d.MetricDays, def.MetricDays)
	if d.SeriesType == "" {
		d.SeriesType = def.SeriesType
	}
	if d.Funnel.Start == "" || d.Funnel.Completion == "" {
		d.Funnel = def.Funnel
	}
	return d
}

// clamp returns n, or fallback when n < 1.
func clamp(n, fallback int) int {
	if n < 1 {
		return fallback
	}
	return n
}
