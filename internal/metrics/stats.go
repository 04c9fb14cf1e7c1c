package metrics

import (
	"math"
	"sort"
	"time"

	"netwatch/internal/models"
)

// Stats summarises connectivity health over a reporting window.
type Stats struct {
	WindowStart         time.Time `json:"window_start"`
	WindowEnd           time.Time `json:"window_end"`
	AvailabilityPercent float64   `json:"availability_percent"`
	TotalProbes         int       `json:"total_probes"`
	FailedProbes        int       `json:"failed_probes"`
	AverageLatencyMS    *float64  `json:"average_latency_ms,omitempty"`
	Outages             int       `json:"outages"`
	DegradedEpisodes    int       `json:"degraded_episodes"`
	TotalDowntimeSecs   float64   `json:"total_downtime_secs"`
	AverageOutageSecs   float64   `json:"average_outage_secs"`
	LongestOutageSecs   float64   `json:"longest_outage_secs"`
	MostCommonCulprit   *Culprit  `json:"most_common_culprit,omitempty"`
	PerTarget           []Target  `json:"per_target"`
}

// Culprit is the hop most often blamed for outages in the window.
type Culprit struct {
	Hop     int    `json:"hop"`
	Label   string `json:"label"`
	Outages int    `json:"outages"`
	Address string `json:"address,omitempty"`
}

// Target breaks availability down per probe target.
type Target struct {
	Name                string   `json:"name"`
	AvailabilityPercent float64  `json:"availability_percent"`
	TotalProbes         int      `json:"total_probes"`
	FailedProbes        int      `json:"failed_probes"`
	AverageLatencyMS    *float64 `json:"average_latency_ms,omitempty"`
}

// Compute aggregates incidents and probe samples into window statistics.
// Open incidents contribute downtime up to the window end.
func Compute(incidents []*models.Incident, probes []models.ProbeOutcome, start, end time.Time) Stats {
	stats := Stats{WindowStart: start, WindowEnd: end}

	type acc struct {
		total      int
		failed     int
		latencySum float64
		latencyN   int
	}
	perTarget := make(map[string]*acc)

	var latencySum float64
	var latencyN int
	for _, p := range probes {
		stats.TotalProbes++
		target := perTarget[p.TargetName]
		if target == nil {
			target = &acc{}
			perTarget[p.TargetName] = target
		}
		target.total++
		if !p.Success {
			stats.FailedProbes++
			target.failed++
		} else if p.LatencyMS != nil {
			latencySum += *p.LatencyMS
			latencyN++
			target.latencySum += *p.LatencyMS
			target.latencyN++
		}
	}

	if stats.TotalProbes > 0 {
		ok := stats.TotalProbes - stats.FailedProbes
		stats.AvailabilityPercent = round2(float64(ok) / float64(stats.TotalProbes) * 100)
	}
	if latencyN > 0 {
		avg := round2(latencySum / float64(latencyN))
		stats.AverageLatencyMS = &avg
	}

	culprits := make(map[int]*culpritAcc)

	for _, incident := range incidents {
		switch incident.Kind {
		case models.KindOutage:
			stats.Outages++
			duration := incidentDuration(incident, end)
			stats.TotalDowntimeSecs += duration
			if duration > stats.LongestOutageSecs {
				stats.LongestOutageSecs = duration
			}
			if incident.CulpritHop != nil {
				c := culprits[*incident.CulpritHop]
				if c == nil {
					c = &culpritAcc{}
					culprits[*incident.CulpritHop] = c
				}
				c.count++
				c.address = incident.CulpritAddress
			}
		case models.KindDegraded:
			stats.DegradedEpisodes++
		}
	}

	if stats.Outages > 0 {
		stats.AverageOutageSecs = round2(stats.TotalDowntimeSecs / float64(stats.Outages))
	}
	stats.TotalDowntimeSecs = round2(stats.TotalDowntimeSecs)
	stats.LongestOutageSecs = round2(stats.LongestOutageSecs)

	if hop, c := mostCommonCulprit(culprits); c != nil {
		stats.MostCommonCulprit = &Culprit{
			Hop:     hop,
			Label:   models.HopLabel(hop),
			Outages: c.count,
			Address: c.address,
		}
	}

	names := make([]string, 0, len(perTarget))
	for name := range perTarget {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data := perTarget[name]
		t := Target{
			Name:         name,
			TotalProbes:  data.total,
			FailedProbes: data.failed,
		}
		if data.total > 0 {
			t.AvailabilityPercent = round2(float64(data.total-data.failed) / float64(data.total) * 100)
		}
		if data.latencyN > 0 {
			avg := round2(data.latencySum / float64(data.latencyN))
			t.AverageLatencyMS = &avg
		}
		stats.PerTarget = append(stats.PerTarget, t)
	}

	return stats
}

func incidentDuration(incident *models.Incident, end time.Time) float64 {
	if incident.DurationSecs != nil {
		return *incident.DurationSecs
	}
	if end.After(incident.StartTime) {
		return end.Sub(incident.StartTime).Seconds()
	}
	return 0
}

type culpritAcc struct {
	count   int
	address string
}

func mostCommonCulprit(culprits map[int]*culpritAcc) (int, *culpritAcc) {
	var bestHop int
	var best *culpritAcc
	for hop, c := range culprits {
		if best == nil || c.count > best.count || (c.count == best.count && hop < bestHop) {
			bestHop, best = hop, c
		}
	}
	return bestHop, best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
