package analytics

import (
	"math"
	"sort"

	"localbiz-chat/internal/domain"
)

// previousPeriodFactor stands in for a real previous-window query.
// TODO: replace with counts from the preceding window once repositories support range queries.
const previousPeriodFactor = 0.8

// MetricData is a current total with its change against the previous period.
type MetricData struct {
	Total         int  `json:"total"`
	ChangePercent int  `json:"changePercent"`
	Positive      bool `json:"positive"`
}

// EstimatePrevious is the placeholder previous-period count.
func EstimatePrevious(current int) int {
	return int(math.Floor(float64(current) * previousPeriodFactor))
}

// NewMetric builds MetricData from a current and previous count. A zero
// previous count reports a 100% increase.
func NewMetric(current, previous int) MetricData {
	change := 100
	if previous != 0 {
		change = int(math.Round(float64(current-previous) / float64(previous) * 100))
	}
	return MetricData{
		Total:         current,
		ChangePercent: absInt(change),
		Positive:      change >= 0,
	}
}

// MetricFor applies the placeholder previous-period estimate.
func MetricFor(current int) MetricData {
	return NewMetric(current, EstimatePrevious(current))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ServiceStat ranks one service by bookings. Views, Revenue and Growth are
// placeholders derived from the booking count, not measured values.
type ServiceStat struct {
	Name     string `json:"name"`
	Bookings int    `json:"bookings"`
	Views    int    `json:"views"`
	Revenue  int    `json:"revenue"`
	Growth   int    `json:"growth"`
}

const (
	topServicesLimit         = 5
	placeholderViewsPer      = 10
	placeholderRevenuePer    = 100
	placeholderGrowthPercent = 10
)

// TopServices groups appointments by service name and returns the five most
// booked, ties broken by name.
func TopServices(appointments []*domain.Appointment) []ServiceStat {
	counts := make(map[string]int)
	for _, a := range appointments {
		counts[a.ServiceName]++
	}

	stats := make([]ServiceStat, 0, len(counts))
	for name, bookings := range counts {
		stats = append(stats, ServiceStat{
			Name:     name,
			Bookings: bookings,
			Views:    bookings * placeholderViewsPer,
			Revenue:  bookings * placeholderRevenuePer,
			Growth:   placeholderGrowthPercent,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Bookings != stats[j].Bookings {
			return stats[i].Bookings > stats[j].Bookings
		}
		return stats[i].Name < stats[j].Name
	})

	if len(stats) > topServicesLimit {
		stats = stats[:topServicesLimit]
	}
	return stats
}
