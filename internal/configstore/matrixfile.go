package configstore

import (
	"fmt"
	"math"

	"github.com/kaelari/lumagrid/pkg/utils"
)

func matrixFileName(deviceID string) string { return deviceID + ".matrix.json" }

// WriteDeviceMatrix persists a device's registration pose as a 3x3
// affine matrix (spec §6.3: "per-device matrix file — JSON 3×3
// affine"), row-major, in the form produced by
// deviceset.finishRegistrationLocked's Kabsch solve.
func (s *Store) WriteDeviceMatrix(deviceID string, pose utils.Pose) error {
	c, sn := math.Cos(pose.Theta), math.Sin(pose.Theta)
	m := [3][3]float64{
		{c, -sn, pose.TX},
		{sn, c, pose.TY},
		{0, 0, 1},
	}
	return s.writeJSON(matrixFileName(deviceID), m)
}

// ReadDeviceMatrix loads a device's affine matrix and recovers the
// equivalent rigid Pose. A missing file returns the identity pose, ok
// == false.
func (s *Store) ReadDeviceMatrix(deviceID string) (pose utils.Pose, ok bool, err error) {
	var m [3][3]float64
	if err := s.readJSON(matrixFileName(deviceID), &m); err != nil {
		return utils.IdentityPose(), false, err
	}
	if m == ([3][3]float64{}) {
		return utils.IdentityPose(), false, nil
	}
	if math.Abs(m[2][2]-1) > 1e-6 {
		return utils.IdentityPose(), false, fmt.Errorf("configstore: %s: not an affine matrix (bottom-right != 1)", deviceID)
	}

	theta := math.Atan2(m[1][0], m[0][0])
	pose = utils.Pose{TX: m[0][2], TY: m[1][2], Theta: theta}
	return pose, true, nil
}
