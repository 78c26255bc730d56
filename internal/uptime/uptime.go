// Package uptime aggregates check history into availability figures.
package uptime

import (
	"math"
	"time"
)

// Rolling windows used for the cached uptime fields.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

// Sample is a single check outcome as seen by the aggregator.
type Sample interface {
	SampledAt() time.Time
	// Available reports UP or DEGRADED.
	Available() bool
	Down() bool
	// Latency is the response time in ms.
	Latency() int
}

// Summary holds the rolling uptime figures cached on a monitor.
type Summary struct {
	Day             float64
	Week            float64
	Month           float64
	AvgResponseTime int
}

// Bar is the per-day aggregate used for historical visualization.
type Bar struct {
	Date          string  `json:"date"` // YYYY-MM-DD, UTC
	TotalChecks   int     `json:"totalChecks"`
	DownChecks    int     `json:"downChecks"`
	UptimePercent float64 `json:"uptimePercent"`
}

// Point is one bucket of a response time series.
type Point struct {
	Time  time.Time `json:"time"`
	Avg   int       `json:"avg"`
	Min   int       `json:"min"`
	Max   int       `json:"max"`
	Count int       `json:"count"`
}

// percent returns part/total as a percentage rounded to two decimals.
func percent(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// ForPeriod returns the share of available (UP or DEGRADED) checks among the
// checks made within period before now. An empty window reports 100.
func ForPeriod[S Sample](checks []S, period time.Duration, now time.Time) float64 {
	cutoff := now.Add(-period)

	total, up := 0, 0
	for _, c := range checks {
		if c.SampledAt().Before(cutoff) {
			continue
		}
		total++
		if c.Available() {
			up++
		}
	}
	if total == 0 {
		return 100
	}
	return percent(up, total)
}

// AvgResponseTime returns the rounded mean of the positive response times,
// or 0 when none qualify.
func AvgResponseTime[S Sample](checks []S) int {
	sum, n := 0, 0
	for _, c := range checks {
		if rt := c.Latency(); rt > 0 {
			sum += rt
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// Cache computes the day/week/month uptime and average response time.
func Cache[S Sample](checks []S, now time.Time) Summary {
	return Summary{
		Day:             ForPeriod(checks, Day, now),
		Week:            ForPeriod(checks, Week, now),
		Month:           ForPeriod(checks, Month, now),
		AvgResponseTime: AvgResponseTime(checks),
	}
}

// Bars returns exactly days entries, one per UTC calendar day ending with the
// day of now, ordered oldest to newest.
func Bars[S Sample](checks []S, days int, now time.Time) []Bar {
	if days <= 0 {
		return []Bar{}
	}

	today := truncateDay(now)
	first := today.AddDate(0, 0, -(days - 1))

	bars := make([]Bar, days)
	for i := range bars {
		bars[i].Date = first.AddDate(0, 0, i).Format("2006-01-02")
	}

	for _, c := range checks {
		day := truncateDay(c.SampledAt())
		if day.Before(first) || day.After(today) {
			continue
		}
		idx := int(day.Sub(first) / Day)
		bars[idx].TotalChecks++
		if c.Down() {
			bars[idx].DownChecks++
		}
	}

	for i := range bars {
		if bars[i].TotalChecks == 0 {
			bars[i].UptimePercent = 100
			continue
		}
		bars[i].UptimePercent = percent(bars[i].TotalChecks-bars[i].DownChecks, bars[i].TotalChecks)
	}
	return bars
}

// ResponseTimeSeries buckets positive response times into fixed width
// buckets covering [now-window, now]. Buckets without data are omitted.
func ResponseTimeSeries[S Sample](checks []S, window, bucket time.Duration, now time.Time) []Point {
	if bucket <= 0 {
		bucket = time.Hour
	}
	start := now.Add(-window).Truncate(bucket)

	type acc struct {
		sum, n, min, max int
	}
	buckets := make(map[int64]*acc)

	for _, c := range checks {
		rt, at := c.Latency(), c.SampledAt()
		if rt <= 0 || at.Before(start) || at.After(now) {
			continue
		}
		key := at.Truncate(bucket).Unix()
		a, ok := buckets[key]
		if !ok {
			a = &acc{min: rt, max: rt}
			buckets[key] = a
		}
		a.sum += rt
		a.n++
		if rt < a.min {
			a.min = rt
		}
		if rt > a.max {
			a.max = rt
		}
	}

	points := []Point{}
	for t := start; !t.After(now); t = t.Add(bucket) {
		a, ok := buckets[t.Unix()]
		if !ok {
			continue
		}
		points = append(points, Point{
			Time:  t.UTC(),
			Avg:   int(math.Round(float64(a.sum) / float64(a.n))),
			Min:   a.min,
			Max:   a.max,
			Count: a.n,
		})
	}
	return points
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
