package flatten

import "sort"

// repairDurations fixes zero-duration samples in place: a sample with a
// successor takes the gap to that successor (at least one tick); the last
// sample duplicates its predecessor's duration (or one tick). Returns the
// file's inferred end and whether a repaired gap exceeded one media tick.
func repairDurations(samples []Sample) (inferredEnd int64, discontinuity bool) {
	for i := range samples {
		if samples[i].Duration == 0 {
			if i+1 < len(samples) {
				gap := samples[i+1].DTS - samples[i].DTS
				if gap > 1 {
					discontinuity = true
				}
				samples[i].Duration = max(1, gap)
			} else if i > 0 {
				samples[i].Duration = samples[i-1].Duration
			} else {
				samples[i].Duration = 1
			}
		}
		if end := samples[i].DTS + max(0, samples[i].Duration); end > inferredEnd {
			inferredEnd = end
		}
	}
	return inferredEnd, discontinuity
}

// normalizeTimeline splices per-file sample lists into one monotonic decode
// timeline. When normalizeAcrossFiles is set, each file is shifted by the
// sum of the prior files' inferred ends so the timelines concatenate. The emission
// order of the files is preserved throughout; no re-sorting happens here, so
// B-frame composition offsets survive intact.
func normalizeTimeline(files [][]Sample, normalizeAcrossFiles bool) ([]Sample, bool) {
	var (
		out            []Sample
		timelineOffset int64
		discontinuity  bool
	)
	for _, samples := range files {
		inferredEnd, disc := repairDurations(samples)
		if disc {
			discontinuity = true
		}
		if normalizeAcrossFiles {
			for i := range samples {
				samples[i].DTS += timelineOffset
				samples[i].CTS += timelineOffset
			}
			timelineOffset += inferredEnd
		}
		out = append(out, samples...)
	}

	monotonize(out)
	return out, discontinuity
}

// monotonize sanitizes the concatenated timeline in place: negative times
// and durations are clamped, decode times are forced non-decreasing without
// reordering, and composition times never precede decode times.
func monotonize(samples []Sample) {
	for i := range samples {
		if samples[i].DTS < 0 {
			samples[i].DTS = 0
		}
		if samples[i].Duration < 0 {
			samples[i].Duration = 0
		}
		if samples[i].CTS < samples[i].DTS {
			samples[i].CTS = samples[i].DTS
		}
	}
	for i := 1; i < len(samples); i++ {
		prev := &samples[i-1]
		cur := &samples[i]
		prevEnd := prev.DTS + max(1, prev.Duration)
		target := max(cur.DTS, max(prev.DTS, prevEnd))
		if delta := target - cur.DTS; delta != 0 {
			cur.DTS += delta
			cur.CTS += delta
		}
		if cur.CTS < cur.DTS {
			cur.CTS = cur.DTS
		}
	}
}

// NormalizeSamples repairs and monotonizes a standalone sample list. When
// preserveOrder is false the samples are first sorted by decode time,
// composition time, then original position; inside the flattening pipeline
// order is always preserved.
func NormalizeSamples(samples []Sample, preserveOrder bool) bool {
	if !preserveOrder {
		// Stable sort keeps original position as the final tie-breaker.
		sort.SliceStable(samples, func(a, b int) bool {
			if samples[a].DTS != samples[b].DTS {
				return samples[a].DTS < samples[b].DTS
			}
			return samples[a].CTS < samples[b].CTS
		})
	}
	_, discontinuity := repairDurations(samples)
	monotonize(samples)
	return discontinuity
}
