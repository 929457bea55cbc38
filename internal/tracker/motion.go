package tracker

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/kaelari/lumagrid/pkg/utils"
)

// motionModel is a smoothed 2D position+velocity estimator, simplified
// from fusion/ekf.go's 15-state predict/update split down to the 2D
// pair the Tracker needs (spec §4.4.1, Non-goals exclude attitude/3D
// estimation).
type motionModel struct {
	state *mat.VecDense // [x, y, vx, vy]
	last  time.Time
}

func newMotionModel(pos utils.Point2D, ts time.Time) *motionModel {
	return &motionModel{
		state: mat.NewVecDense(4, []float64{pos.X, pos.Y, 0, 0}),
		last:  ts,
	}
}

// predict projects the current position forward by dt using the
// smoothed velocity estimate.
func (m *motionModel) predict(ts time.Time) utils.Point2D {
	dt := ts.Sub(m.last).Seconds()
	if dt < 0 {
		dt = 0
	}
	return utils.Point2D{
		X: m.state.AtVec(0) + m.state.AtVec(2)*dt,
		Y: m.state.AtVec(1) + m.state.AtVec(3)*dt,
	}
}

// update folds a new observed position into the velocity estimate
// with an exponential smoothing weight (trackFilterWeight), then
// advances the filter's position to the observation.
func (m *motionModel) update(pos utils.Point2D, ts time.Time, filterWeight float64) utils.Point2D {
	dt := ts.Sub(m.last).Seconds()
	if dt <= 0 {
		dt = 1e-3
	}
	vx := (pos.X - m.state.AtVec(0)) / dt
	vy := (pos.Y - m.state.AtVec(1)) / dt

	smoothedVx := filterWeight*vx + (1-filterWeight)*m.state.AtVec(2)
	smoothedVy := filterWeight*vy + (1-filterWeight)*m.state.AtVec(3)

	m.state.SetVec(0, pos.X)
	m.state.SetVec(1, pos.Y)
	m.state.SetVec(2, smoothedVx)
	m.state.SetVec(3, smoothedVy)
	m.last = ts

	return utils.Point2D{X: smoothedVx, Y: smoothedVy}
}
