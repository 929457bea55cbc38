package devicecore

// envAccumulator is the in-progress environment scan: each frame's samples
// are folded in, keeping the per-bucket minimum range and its quality
// (spec §4.2 step 2: "accumulate per-bucket min-range + quality").
type envAccumulator struct {
	entries [NumSamples]EnvironmentEntry
	seen    [NumSamples]bool
}

func newEnvAccumulator() *envAccumulator {
	return &envAccumulator{}
}

func (a *envAccumulator) accumulate(frame RawFrame) {
	for _, s := range frame.Samples {
		if !s.Valid() {
			continue
		}
		b := Bucket(s.Angle, NumSamples)
		if !a.seen[b] || s.Distance < a.entries[b].Distance {
			a.entries[b] = EnvironmentEntry{
				Distance:     s.Distance,
				Quality:      s.Quality,
				LastUpdateMS: frame.TimestampMS,
				Valid:        true,
			}
			a.seen[b] = true
		}
	}
}

// finish erodes then smooths the accumulated ring by k neighbors to
// suppress speckle (spec §4.2 step 2), and rejects envs with fewer than
// 50% of buckets populated (spec §4.2 Error semantics / §8 boundary).
func (a *envAccumulator) finish(k int) (*EnvironmentModel, bool) {
	eroded := erode(a.entries, a.seen, k)
	smoothed := smooth(eroded, a.seen, k)

	env := &EnvironmentModel{Entries: smoothed}
	if env.PopulatedFraction() < 0.5 {
		return env, false
	}
	return env, true
}

// erode clears a bucket's validity if fewer than half its k-neighborhood
// is populated, suppressing isolated spurious readings before smoothing.
func erode(entries [NumSamples]EnvironmentEntry, seen [NumSamples]bool, k int) [NumSamples]EnvironmentEntry {
	if k <= 0 {
		return entries
	}
	out := entries
	for i := 0; i < NumSamples; i++ {
		if !seen[i] {
			continue
		}
		populated := 0
		for d := -k; d <= k; d++ {
			j := wrap(i+d, NumSamples)
			if seen[j] {
				populated++
			}
		}
		if populated*2 < (2*k + 1) {
			out[i].Valid = false
		}
	}
	return out
}

// smooth averages each populated bucket with its k neighbors that are
// themselves populated.
func smooth(entries [NumSamples]EnvironmentEntry, seen [NumSamples]bool, k int) [NumSamples]EnvironmentEntry {
	if k <= 0 {
		return entries
	}
	out := entries
	for i := 0; i < NumSamples; i++ {
		if !entries[i].Valid {
			continue
		}
		sum := 0.0
		n := 0
		for d := -k; d <= k; d++ {
			j := wrap(i+d, NumSamples)
			if entries[j].Valid {
				sum += entries[j].Distance
				n++
			}
		}
		if n > 0 {
			out[i].Distance = sum / float64(n)
		}
	}
	return out
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
