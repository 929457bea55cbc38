package configstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DeviceDescriptor names one configured sensor, mirroring the `+d
// <dev>` CLI form (type:address) plus its pose/group assignment, for
// operators who prefer an editable manifest file over per-device flags.
type DeviceDescriptor struct {
	ID      string
	Type    string
	Address string
	Group   string
}

type deviceManifest struct {
	Device []DeviceDescriptor
}

// ReadDeviceManifest loads a device descriptor list. JSON is the core
// §6.3 contract; a `.toml` filename uses BurntSushi/toml instead, the
// same decoder MiFaceDEV-miface uses for its device manifests — purely
// an operator-convenience alternate encoding of the same shape.
func (s *Store) ReadDeviceManifest(name string) ([]DeviceDescriptor, error) {
	if strings.HasSuffix(name, ".toml") {
		return s.readDeviceManifestTOML(name)
	}
	var m deviceManifest
	if err := s.readJSON(name, &m); err != nil {
		return nil, err
	}
	return m.Device, nil
}

func (s *Store) readDeviceManifestTOML(name string) ([]DeviceDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := filepath.Join(s.dir, name)
	var m deviceManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return m.Device, nil
}
