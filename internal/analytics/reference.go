package analytics

// DemographicSlice is one audience segment share.
type DemographicSlice struct {
	Label      string `json:"label"`
	Percentage int    `json:"percentage"`
}

// TrafficSource is one acquisition channel share.
type TrafficSource struct {
	Source     string `json:"source"`
	Visits     int    `json:"visits"`
	Percentage int    `json:"percentage"`
}

// Demographics and traffic sources are static reference data. They are not
// computed from any business input and are returned unchanged.

func Demographics() []DemographicSlice {
	return []DemographicSlice{
		{Label: "18-24", Percentage: 15},
		{Label: "25-34", Percentage: 35},
		{Label: "35-44", Percentage: 25},
		{Label: "45-54", Percentage: 15},
		{Label: "55+", Percentage: 10},
	}
}

func TrafficSources() []TrafficSource {
	return []TrafficSource{
		{Source: "Search", Visits: 450, Percentage: 45},
		{Source: "Direct", Visits: 250, Percentage: 25},
		{Source: "Social", Visits: 150, Percentage: 15},
		{Source: "Referral", Visits: 100, Percentage: 10},
		{Source: "Other", Visits: 50, Percentage: 5},
	}
}

// Overview groups the headline metrics.
type Overview struct {
	ProfileViews MetricData `json:"profileViews"`
	Appointments MetricData `json:"appointments"`
	Reviews      MetricData `json:"reviews"`
	Messages     MetricData `json:"messages"`
}

// Summary is the analytics document returned for one business and window.
type Summary struct {
	BusinessID     int64              `json:"businessId"`
	BusinessName   string             `json:"businessName"`
	TimeRange      TimeRange          `json:"timeRange"`
	Window         Window             `json:"window"`
	Overview       Overview           `json:"overview"`
	TopServices    []ServiceStat      `json:"topServices"`
	Demographics   []DemographicSlice `json:"demographics"`
	TrafficSources []TrafficSource    `json:"trafficSources"`
}
