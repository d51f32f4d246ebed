package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCounter exposes live conversation counts from the session store.
type SessionCounter interface {
	Len() int
	CountInState(state string) int
}

// RecordingStats returns aggregate counts over the recording index.
type RecordingStats interface {
	Stats(ctx context.Context) (total, distinctUsers int64, byCategory map[string]int64, err error)
}

// Collector is a prometheus.Collector that gathers bot metrics at scrape time.
type Collector struct {
	sessions   SessionCounter
	recordings RecordingStats
	states     []string
	startTime  time.Time

	// Metric descriptors.
	sessionsDesc        *prometheus.Desc
	sessionsByStateDesc *prometheus.Desc
	recordingsDesc      *prometheus.Desc
	contributorsDesc    *prometheus.Desc
	byCategoryDesc      *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a new metrics collector. Either provider may be nil
// if unavailable. states lists the conversation states to report per-state
// session gauges for.
func NewCollector(sessions SessionCounter, recordings RecordingStats, states []string, startTime time.Time) *Collector {
	return &Collector{
		sessions:   sessions,
		recordings: recordings,
		states:     states,
		startTime:  startTime,

		sessionsDesc: prometheus.NewDesc(
			"kasabot_sessions",
			"Number of conversations currently held in memory",
			nil, nil,
		),
		sessionsByStateDesc: prometheus.NewDesc(
			"kasabot_sessions_by_state",
			"Number of conversations per state",
			[]string{"state"}, nil,
		),
		recordingsDesc: prometheus.NewDesc(
			"kasabot_recordings_total",
			"Total number of saved recordings (from the index)",
			nil, nil,
		),
		contributorsDesc: prometheus.NewDesc(
			"kasabot_contributors",
			"Number of distinct users with at least one saved recording",
			nil, nil,
		),
		byCategoryDesc: prometheus.NewDesc(
			"kasabot_recordings_by_category_total",
			"Saved recordings grouped by prompt category",
			[]string{"category"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"kasabot_uptime_seconds",
			"Seconds since the bot process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.sessionsByStateDesc
	ch <- c.recordingsDesc
	ch <- c.contributorsDesc
	ch <- c.byCategoryDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries the providers at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.sessionsDesc, prometheus.GaugeValue,
			float64(c.sessions.Len()),
		)
		for _, state := range c.states {
			ch <- prometheus.MustNewConstMetric(
				c.sessionsByStateDesc, prometheus.GaugeValue,
				float64(c.sessions.CountInState(state)), state,
			)
		}
	}

	if c.recordings != nil {
		total, users, byCategory, err := c.recordings.Stats(ctx)
		if err != nil {
			slog.Error("metrics: failed to query recording stats", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.recordingsDesc, prometheus.CounterValue, float64(total),
			)
			ch <- prometheus.MustNewConstMetric(
				c.contributorsDesc, prometheus.GaugeValue, float64(users),
			)
			for cat, n := range byCategory {
				ch <- prometheus.MustNewConstMetric(
					c.byCategoryDesc, prometheus.CounterValue, float64(n), cat,
				)
			}
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
