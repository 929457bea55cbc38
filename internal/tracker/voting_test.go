package tracker

import (
	"testing"
	"time"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

func TestConfidenceVoterDiscountsUncorroboratedSpike(t *testing.T) {
	v := NewConfidenceVoter(0.2)
	now := time.Now()

	for i := 0; i < 5; i++ {
		steady := []*devicecore.DetectedObject{obj(0, 0, 0.4, 0, now)}
		v.Corroborate(steady, 0.4)
	}

	spike := []*devicecore.DetectedObject{obj(10, 10, 0.95, 0, now)}
	v.Corroborate(spike, 0.4)

	if spike[0].Confidence >= 0.95 {
		t.Fatalf("expected an uncorroborated confidence spike to be discounted, got %f", spike[0].Confidence)
	}
}

func TestConfidenceVoterLeavesCorroboratedSpikeAlone(t *testing.T) {
	v := NewConfidenceVoter(0.2)
	now := time.Now()

	for i := 0; i < 5; i++ {
		steady := []*devicecore.DetectedObject{obj(0, 0, 0.4, 0, now)}
		v.Corroborate(steady, 0.4)
	}

	group := []*devicecore.DetectedObject{
		obj(10, 10, 0.95, 0, now),
		obj(10.1, 10.05, 0.9, 1, now),
	}
	v.Corroborate(group, 0.4)

	if group[0].Confidence != 0.95 {
		t.Fatalf("expected a corroborated confidence spike to survive unchanged, got %f", group[0].Confidence)
	}
}
