package tracker

import (
	"sort"
	"sync"
	"time"
)

// stage owns the persistent Trackable table and implements
// association, motion prediction, and lifecycle (spec §4.4 step 6):
// nearest-neighbor assignment of merged points to existing
// Trackables within trackDistance, Occlusion/Portal/Private
// classification, immobility detection, and keepAliveMs-bounded
// Leave expiry. TrackBase.cpp seeds uniteDistance/trackDistance/
// trackFilterWeight on its TrackableMultiStage; the stage's own
// association/lifecycle source (TrackableStage::unite) was not part
// of the retrieved original_source pack, so this implementation is
// built directly from spec.md §4.4's description, reusing fusion/
// ekf.go's predict/update split for the motion model.
type stage struct {
	mu sync.Mutex

	cfg       Config
	occlusion *OcclusionMap

	trackables map[string]*Trackable
	motions    map[string]*motionModel
}

func newStage(cfg Config) *stage {
	return &stage{
		cfg:        cfg,
		trackables: make(map[string]*Trackable),
		motions:    make(map[string]*motionModel),
	}
}

func (s *stage) setOcclusionMap(m *OcclusionMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occlusion = m
}

type assoc struct {
	pointIdx int
	id       string
	dist     float64
}

// update associates points against the current Trackable table,
// advances survivors and creates/expires as needed, and returns every
// Trackable still visible this frame (including ones in their
// keepAliveMs grace window, flagged Latent).
func (s *stage) update(points []mergedPoint, ts time.Time) []*Trackable {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []assoc
	for pi, p := range points {
		for id, tr := range s.trackables {
			d := tr.Predicted.Distance(p.Center)
			if d <= s.cfg.TrackDistance {
				candidates = append(candidates, assoc{pointIdx: pi, id: id, dist: d})
			}
		}
	}

	// Nearest-neighbor greedy assignment; ties broken by the
	// competing Trackable's confidence (higher wins), then by lower
	// numeric id (spec §4.4 tie-breaking).
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}
		ta, tb := s.trackables[candidates[a].id], s.trackables[candidates[b].id]
		if ta.Confidence != tb.Confidence {
			return ta.Confidence > tb.Confidence
		}
		ia, ib := candidates[a].id, candidates[b].id
		if len(ia) != len(ib) {
			return len(ia) < len(ib)
		}
		return ia < ib
	})

	assignedPoint := make(map[int]bool)
	assignedTrackable := make(map[string]bool)
	for _, c := range candidates {
		if assignedPoint[c.pointIdx] || assignedTrackable[c.id] {
			continue
		}
		assignedPoint[c.pointIdx] = true
		assignedTrackable[c.id] = true
		s.touch(c.id, points[c.pointIdx], ts)
	}

	for pi, p := range points {
		if assignedPoint[pi] {
			continue
		}
		s.promote(p, ts)
	}

	var out []*Trackable
	for id, tr := range s.trackables {
		if assignedTrackable[id] {
			tr.Flags &^= FlagLatent
			tr.pendingLeaveSince = time.Time{}
			out = append(out, tr)
			continue
		}

		if tr.pendingLeaveSince.IsZero() {
			tr.pendingLeaveSince = ts
		}
		if ts.Sub(tr.pendingLeaveSince) >= time.Duration(s.cfg.KeepAliveMs)*time.Millisecond {
			delete(s.trackables, id)
			delete(s.motions, id)
			continue
		}
		tr.Predicted = s.motions[id].predict(ts)
		tr.Flags |= FlagLatent
		out = append(out, tr)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *stage) touch(id string, p mergedPoint, ts time.Time) {
	tr := s.trackables[id]
	motion := s.motions[id]

	tr.Motion = motion.update(p.Center, ts, s.cfg.TrackFilterWeight)
	tr.Position = p.Center
	tr.Predicted = motion.predict(ts)
	tr.Size = p.Size
	tr.Confidence = p.Confidence
	tr.SplitProb = p.SplitProb
	tr.User2 = p.User2
	tr.LastTouched = ts

	s.applyImmobility(tr, ts)
	s.applyOcclusion(tr)
}

func (s *stage) promote(p mergedPoint, ts time.Time) {
	tr := newTrackable(p.Center, p.Size, p.Confidence, ts)
	tr.SplitProb = p.SplitProb
	tr.User2 = p.User2
	tr.Flags |= FlagActivated
	s.applyOcclusion(tr)

	s.trackables[tr.ID] = tr
	s.motions[tr.ID] = newMotionModel(p.Center, ts)
}

// applyImmobility flags a Trackable Immobile once its centroid has
// not moved more than immobileDistance within immobileTimeout (spec
// §4.4, §8 scenario S5).
func (s *stage) applyImmobility(tr *Trackable, ts time.Time) {
	if tr.Position.Distance(tr.immobileRef) > s.cfg.ImmobileDistance {
		tr.immobileRef = tr.Position
		tr.immobileSince = ts
		tr.Flags &^= FlagImmobile
		return
	}
	if ts.Sub(tr.immobileSince) >= s.cfg.ImmobileTimeout {
		tr.Flags |= FlagImmobile
	}
}

func (s *stage) applyOcclusion(tr *Trackable) {
	tr.Flags &^= (FlagOccluded | FlagPortal | FlagPrivate)
	tr.Flags |= s.occlusion.Classify(tr.Position.X, tr.Position.Y)
}
