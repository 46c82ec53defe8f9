// Package rtcp aggregates per-participant network quality reports into
// meeting-scoped statistics for the quality control loop.
package rtcp

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

const DefaultWindowSize = 10

// MeetingLocator resolves the meeting a reporting user currently belongs to.
// Satisfied by app.MeetingRegistry.
type MeetingLocator interface {
	MeetingOf(domain.UserID) (domain.MeetingID, bool)
}

// Stats are arithmetic means over every retained report of a meeting, plus
// the worst observed loss. Samples are never weighted by age.
type Stats struct {
	AvgLoss   float64
	AvgJitter float64
	AvgRtt    float64
	WorstLoss float64
	Samples   int
}

// Collector keeps a bounded sliding window of the most recent reports per
// user and a meeting index so aggregation stays meeting-scoped.
type Collector struct {
	mu        sync.RWMutex
	window    int
	reports   map[domain.UserID][]domain.RtcpReport
	byMeeting map[domain.MeetingID]map[domain.UserID]struct{}
	locator   MeetingLocator
}

func NewCollector(locator MeetingLocator, window int) *Collector {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &Collector{
		window:    window,
		reports:   make(map[domain.UserID][]domain.RtcpReport),
		byMeeting: make(map[domain.MeetingID]map[domain.UserID]struct{}),
		locator:   locator,
	}
}

// Collect appends the report to the user's window, evicting the oldest entry
// past the window size. The only way a report is ever dropped.
func (c *Collector) Collect(rep domain.RtcpReport) {
	meetingID, inMeeting := c.locator.MeetingOf(rep.UserID)

	c.mu.Lock()
	w := append(c.reports[rep.UserID], rep)
	if len(w) > c.window {
		w = w[len(w)-c.window:]
	}
	c.reports[rep.UserID] = w
	if inMeeting {
		users, ok := c.byMeeting[meetingID]
		if !ok {
			users = make(map[domain.UserID]struct{})
			c.byMeeting[meetingID] = users
		}
		users[rep.UserID] = struct{}{}
	}
	c.mu.Unlock()

	metrics.ReportedLoss.Observe(rep.LossPct)
	log.Debug().Str("module", "rtcp").Str("user", string(rep.UserID)).Float64("loss", rep.LossPct).Msg("collected report")
}

// WorstLoss returns the maximum loss across all retained reports of every
// user currently mapped to the meeting, or 0 if none are retained.
func (c *Collector) WorstLoss(meetingID domain.MeetingID) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var worst float64
	for userID := range c.byMeeting[meetingID] {
		for _, rep := range c.reports[userID] {
			if rep.LossPct > worst {
				worst = rep.LossPct
			}
		}
	}
	return worst
}

// Metrics returns the meeting's aggregate statistics.
func (c *Collector) Metrics(meetingID domain.MeetingID) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s Stats
	for userID := range c.byMeeting[meetingID] {
		for _, rep := range c.reports[userID] {
			s.AvgLoss += rep.LossPct
			s.AvgJitter += rep.JitterMs
			s.AvgRtt += rep.RttMs
			if rep.LossPct > s.WorstLoss {
				s.WorstLoss = rep.LossPct
			}
			s.Samples++
		}
	}
	if s.Samples > 0 {
		n := float64(s.Samples)
		s.AvgLoss /= n
		s.AvgJitter /= n
		s.AvgRtt /= n
	}
	return s
}

// CleanupUser invalidates the window of a user who left.
func (c *Collector) CleanupUser(userID domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.reports, userID)
	for _, users := range c.byMeeting {
		delete(users, userID)
	}
	log.Debug().Str("module", "rtcp").Str("user", string(userID)).Msg("dropped report window")
}

// CleanupMeeting drops the meeting's index entry on teardown.
func (c *Collector) CleanupMeeting(meetingID domain.MeetingID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byMeeting, meetingID)
}
