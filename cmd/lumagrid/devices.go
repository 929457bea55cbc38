package main

import (
	"image"
	"strings"

	"github.com/kaelari/lumagrid/internal/configstore"
	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/internal/driver"
	"github.com/kaelari/lumagrid/pkg/utils"
)

// parseDeviceSpec splits a `+d` argument's `type:address` form (spec
// §6.4) into a DeviceDescriptor. The descriptor's ID defaults to its
// address so repeated `+d` flags for distinct addresses don't collide.
func parseDeviceSpec(raw string) (configstore.DeviceDescriptor, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return configstore.DeviceDescriptor{}, usageErrorf("+d %q: expected type:address", raw)
	}
	return configstore.DeviceDescriptor{ID: parts[1], Type: parts[0], Address: parts[1]}, nil
}

// addDevice constructs the driver named by desc.Type, wraps it in a
// DeviceCore at the device's registered pose (its matrix file, if a
// config store has one, else identity), and registers it with the
// DeviceSet. The switch over transport names mirrors driver.go's own
// SensorDriver variant list (spec §4.1).
func (a *app) addDevice(desc configstore.DeviceDescriptor) error {
	pose := utils.IdentityPose()
	if a.store != nil {
		if p, ok, err := a.store.ReadDeviceMatrix(desc.ID); err == nil && ok {
			pose = p
		}
	}

	var drv driver.SensorDriver
	switch desc.Type {
	case "local", "serial":
		drv = driver.NewLocalDriver(driver.LocalConfig{Port: desc.Address, BaudRate: 115200})
	case "virtual", "udp":
		drv = driver.NewVirtualUDPDriver(driver.VirtualUDPConfig{ListenAddr: desc.Address})
	case "file", "playback":
		drv = driver.NewFileDriver(driver.FileConfig{Path: desc.Address, Loop: true, PlaybackRate: 1.0})
	case "sim", "simulated":
		drv = driver.NewSimulatedDriver(a.simulatedConfig(desc.Address))
	default:
		return usageErrorf("+d %s: unknown device type %q", desc.Address, desc.Type)
	}

	core := devicecore.New(desc.ID, pose, devicecore.DefaultPipelineConfig())
	a.deviceSet.AddDevice(desc.ID, core, drv)
	a.cores[desc.ID] = core
	if desc.Group != "" {
		a.groupMembers[desc.Group] = append(a.groupMembers[desc.Group], desc.ID)
	}
	a.logger.WithFields(map[string]interface{}{"device": desc.ID, "type": desc.Type}).Info("device registered")
	return nil
}

// simulatedConfig resolves a `+d sim:<blueprint>` device's occupancy
// grid from blueprints.json (spec §6.3), falling back to a free-space
// placeholder when no blueprint is registered under that name or the
// image fails to load (so a typo'd blueprint name degrades to an
// empty room rather than failing device registration outright).
func (a *app) simulatedConfig(blueprintName string) driver.SimulatedConfig {
	cfg := defaultSimulatedConfig()
	if a.store == nil || blueprintName == "" {
		return cfg
	}
	blueprints, err := a.store.ReadBlueprints()
	if err != nil {
		a.logger.WithError(err).Warn("blueprints.json unreadable, using free-space bitmap")
		return cfg
	}
	desc, ok := blueprints[blueprintName]
	if !ok {
		return cfg
	}
	img, err := a.store.ReadBlueprintImage(desc)
	if err != nil {
		a.logger.WithError(err).WithFields(map[string]interface{}{"blueprint": blueprintName}).
			Warn("blueprint image unreadable, using free-space bitmap")
		return cfg
	}
	cfg.Bitmap = driver.Bitmap{Img: img, MetersPerPixel: desc.MetersPerPixel, OccupiedThreshold: desc.OccupiedThreshold}
	cfg.OriginX, cfg.OriginY = desc.OriginX, desc.OriginY
	return cfg
}

// defaultSimulatedConfig gives `+simulationMode` a free-space bitmap to
// ray-march against when no blueprint image is configured: the 20 m x
// 20 m image holds no obstacles and the sensor sits at its center, so
// every ray runs to the image border (about 10-14 m away, inside the
// 15 m max range), which the ray-march treats as a wall. The simulated
// device sees an empty walled room rather than failing outright.
func defaultSimulatedConfig() driver.SimulatedConfig {
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return driver.SimulatedConfig{
		Bitmap:        driver.Bitmap{Img: img, MetersPerPixel: 0.05, OccupiedThreshold: 32},
		OriginX:       10,
		OriginY:       10,
		MaxRange:      15,
		RangeStep:     0.05,
		SamplesPerRev: devicecore.NumSamples,
		ScanHz:        10,
	}
}
