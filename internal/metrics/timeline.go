package metrics

import (
	"sort"
	"time"

	"netwatch/internal/models"
)

// DefaultTimelinePoints controls how many dots a timeline gets.
const DefaultTimelinePoints = 80

// TimelinePoint is one bucket of a compact connectivity timeline.
type TimelinePoint struct {
	ClassName string    `json:"class_name"`
	Label     string    `json:"label"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// TargetTimeline is the bucketed probe history for one target.
type TargetTimeline struct {
	Target   string          `json:"target"`
	Timeline []TimelinePoint `json:"timeline"`
}

// BuildTargetTimelines reduces probe samples into per-target timelines
// suitable for a status page strip.
func BuildTargetTimelines(probes []models.ProbeOutcome, start, end time.Time, points int) []TargetTimeline {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	byTarget := make(map[string][]models.ProbeOutcome)
	for _, p := range probes {
		if p.Timestamp.IsZero() {
			continue
		}
		byTarget[p.TargetName] = append(byTarget[p.TargetName], p)
	}
	if len(byTarget) == 0 {
		return nil
	}

	names := make([]string, 0, len(byTarget))
	for name := range byTarget {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]TargetTimeline, 0, len(names))
	for _, name := range names {
		result = append(result, TargetTimeline{
			Target:   name,
			Timeline: buildTimeline(byTarget[name], start, end, points),
		})
	}
	return result
}

func buildTimeline(samples []models.ProbeOutcome, start, end time.Time, points int) []TimelinePoint {
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}

	output := make([]TimelinePoint, 0, points)
	cursor := 0
	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}

		for cursor < len(samples) && samples[cursor].Timestamp.Before(bucketStart) {
			cursor++
		}
		j := cursor
		var failed, total int
		for j < len(samples) && samples[j].Timestamp.Before(bucketEnd) {
			total++
			if !samples[j].Success {
				failed++
			}
			j++
		}
		cursor = j

		point := TimelinePoint{Start: bucketStart, End: bucketEnd}
		point.ClassName, point.Label = classify(total, failed)
		output = append(output, point)
	}
	return output
}

func classify(total, failed int) (className, label string) {
	switch {
	case total == 0:
		return "state-missing", "No data"
	case failed == 0:
		return "state-success", "Online"
	case failed == total:
		return "state-error", "Offline"
	default:
		return "state-warning", "Degraded"
	}
}
