package configstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/kaelari/lumagrid/internal/devicecore"
)

// envMagic tags a per-device environment file so a stray file of the
// wrong kind is rejected rather than silently misparsed.
const envMagic = 0x4C554D41 // "LUMA"

const envEntrySize = 8 + 4 + 8 + 1 // distance f64, quality i32, lastUpdateMS u64, valid u8

func envFileName(deviceID string) string { return deviceID + ".env" }

// WriteDeviceEnv persists a device's EnvironmentModel as a binary,
// magic-prefixed array of buckets (spec §6.3).
func (s *Store) WriteDeviceEnv(deviceID string, env *devicecore.EnvironmentModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("configstore: create %s: %w", s.dir, err)
	}

	buf := make([]byte, 8+len(env.Entries)*envEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], envMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(env.Entries)))
	off := 8
	for _, e := range env.Entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(e.Distance))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(e.Quality))
		binary.LittleEndian.PutUint64(buf[off+12:off+20], e.LastUpdateMS)
		if e.Valid {
			buf[off+20] = 1
		}
		off += envEntrySize
	}

	if err := os.WriteFile(filepath.Join(s.dir, envFileName(deviceID)), buf, 0644); err != nil {
		return fmt.Errorf("configstore: write env for %s: %w", deviceID, err)
	}
	return nil
}

// ReadDeviceEnv loads a device's EnvironmentModel. A missing file
// returns (nil, nil): no persisted background model is a normal
// startup state, not an error.
func (s *Store) ReadDeviceEnv(deviceID string) (*devicecore.EnvironmentModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, err := os.ReadFile(filepath.Join(s.dir, envFileName(deviceID)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: read env for %s: %w", deviceID, err)
	}
	if len(buf) < 8 || binary.LittleEndian.Uint32(buf[0:4]) != envMagic {
		return nil, fmt.Errorf("configstore: %s: not an env file", deviceID)
	}
	count := int(binary.LittleEndian.Uint32(buf[4:8]))
	if count != devicecore.NumSamples {
		return nil, fmt.Errorf("configstore: %s: expected %d buckets, got %d", deviceID, devicecore.NumSamples, count)
	}

	var env devicecore.EnvironmentModel
	off := 8
	for i := 0; i < count; i++ {
		if off+envEntrySize > len(buf) {
			return nil, fmt.Errorf("configstore: %s: truncated env file", deviceID)
		}
		env.Entries[i] = devicecore.EnvironmentEntry{
			Distance:     math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8])),
			Quality:      int(int32(binary.LittleEndian.Uint32(buf[off+8 : off+12]))),
			LastUpdateMS: binary.LittleEndian.Uint64(buf[off+12 : off+20]),
			Valid:        buf[off+20] != 0,
		}
		off += envEntrySize
	}
	return &env, nil
}
