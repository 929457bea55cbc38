// LumaGrid - spatial-presence fusion engine
//
// Fuses one or more 2D LiDAR-style sensors into a single registered
// world frame, tracks people/objects across device boundaries, and
// replays their Enter/Move/Leave lifecycle through a configurable
// set of region-bound observers and delivery sinks.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kaelari/lumagrid/internal/configstore"
	"github.com/kaelari/lumagrid/internal/devicecore"
	"github.com/kaelari/lumagrid/internal/deviceset"
	"github.com/kaelari/lumagrid/internal/observer"
	"github.com/kaelari/lumagrid/internal/region"
	"github.com/kaelari/lumagrid/internal/tracker"
	"github.com/kaelari/lumagrid/pkg/utils"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// app is the central application struct, mirroring cmd/valkyrie/main.go's
// Valkyrie struct: every subsystem plus the HTTP server, a running
// flag, and a cancellable context shared by every subsystem goroutine.
type app struct {
	cli cliConfig

	store   *configstore.Store
	regions *region.Registry

	deviceSet *deviceset.DeviceSet
	cores     map[string]*devicecore.DeviceCore

	trackerEngine *tracker.Tracker
	pipeline      *observer.Pipeline
	wsSink        *observer.WebSocketSink

	groupMembers map[string][]string

	httpServer *http.Server

	running bool
	mu      sync.RWMutex

	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	cli, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	printBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &app{cli: cli, ctx: ctx, cancel: cancel}

	if err := a.Initialize(); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			log.Printf("usage error: %v", err)
			os.Exit(1)
		}
		log.Printf("config error: %v", err)
		os.Exit(2)
	}

	if err := a.Start(); err != nil {
		log.Fatalf("failed to start lumagrid: %v", err)
	}

	log.Println("lumagrid is operational; press Ctrl+C to shut down")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received, stopping")
	if err := a.Shutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("lumagrid shutdown complete")
}

// Initialize builds every subsystem from cli: the config store
// (optionally resolved to a checkpoint snapshot), region registry,
// device set (groups, then `+d` devices), tracker, and observer
// pipeline (configured observers selected by `+useObserver`, ad-hoc
// observers from `+observer`).
func (a *app) Initialize() error {
	level := "info"
	if a.cli.verbosity > 0 {
		level = "debug"
	}
	a.logger = utils.NewLogger(level, "stdout")
	a.logger.Info("initializing lumagrid")

	a.store = configstore.New(a.cli.configDir)
	if a.cli.checkpointTag != "" {
		resolved, err := a.store.Resolve(a.cli.checkpointTag)
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		a.store = resolved
	}

	a.regions = region.NewRegistry()
	if err := a.store.ReadRegions(a.regions); err != nil {
		return fmt.Errorf("regions.json: %w", err)
	}

	a.deviceSet = deviceset.New(deviceset.DefaultConfig())
	a.deviceSet.SetSimulationMode(a.cli.simulationMode)
	a.cores = make(map[string]*devicecore.DeviceCore)
	a.groupMembers = make(map[string][]string)

	storedGroups, err := a.store.ReadGroups()
	if err != nil {
		return fmt.Errorf("groups.json: %w", err)
	}
	for name, members := range storedGroups {
		for member := range members {
			a.groupMembers[name] = append(a.groupMembers[name], member)
		}
	}

	manifest, err := a.store.ReadDeviceManifest("devices.json")
	if err != nil {
		return fmt.Errorf("devices.json: %w", err)
	}
	for _, desc := range manifest {
		if err := a.addDevice(desc); err != nil {
			return err
		}
	}

	for _, raw := range a.cli.devices {
		desc, err := parseDeviceSpec(raw)
		if err != nil {
			return err
		}
		if err := a.addDevice(desc); err != nil {
			return err
		}
	}

	for name, members := range a.groupMembers {
		a.deviceSet.SetGroup(name, members)
	}
	for _, g := range a.cli.includeGroups {
		a.deviceSet.ActivateGroup(g)
	}
	for _, g := range a.cli.excludeGroups {
		a.deviceSet.DeactivateGroup(g)
	}

	trackerCfg := tracker.DefaultConfig()
	a.trackerEngine = tracker.New(trackerCfg)

	a.pipeline = observer.NewPipeline()
	a.wsSink = observer.NewWebSocketSink(binary.BigEndian)

	observerSettings, err := a.store.ReadKVMap(configstore.ObserversFile)
	if err != nil {
		return fmt.Errorf("observer.json: %w", err)
	}
	for _, want := range a.cli.useObservers {
		if want == "all" {
			for name, settings := range observerSettings {
				if err := a.registerObserver(name, settings); err != nil {
					return fmt.Errorf("observer %s: %w", name, err)
				}
			}
			break
		}
		settings, ok := observerSettings[want]
		if !ok {
			return fmt.Errorf("configstore: observer %q not found in observer.json", want)
		}
		if err := a.registerObserver(want, settings); err != nil {
			return fmt.Errorf("observer %s: %w", want, err)
		}
	}
	for _, raw := range a.cli.adHocObservers {
		name, settings, err := parseAdHocObserver(raw)
		if err != nil {
			return err
		}
		if err := a.registerObserver(name, settings); err != nil {
			return fmt.Errorf("observer %s: %w", name, err)
		}
	}

	a.logger.Info("initialization complete")
	return nil
}

func (a *app) registerObserver(name string, settings map[string]string) error {
	o, err := a.buildObserver(name, settings)
	if err != nil {
		return err
	}
	return a.pipeline.Add(o, time.Now())
}

// Start launches the device/tracker/observer drive loop, the
// websocket broadcast pump, and the admin HTTP server (spec §5: "one
// main thread driving DeviceSet->Tracker->ObserverPipeline at target
// FPS").
func (a *app) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if err := a.pipeline.Start(now); err != nil {
		return fmt.Errorf("starting observer pipeline: %w", err)
	}

	wsStop := make(chan struct{})
	go a.wsSink.Run(wsStop)
	go func() {
		<-a.ctx.Done()
		close(wsStop)
	}()

	go a.driveLoop()

	if err := a.startHTTPServer(); err != nil {
		return fmt.Errorf("starting admin http server: %w", err)
	}

	a.running = true
	return nil
}

// driveLoop is the teacher's per-subsystem goroutine idiom applied to
// the fusion cycle itself: DeviceSet.Update -> Tracker.Update ->
// Pipeline.Observe, paced to `+fps` (spec §5).
func (a *app) driveLoop() {
	fps := a.cli.fps
	if fps <= 0 {
		fps = 20
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *app) tick() {
	ts := time.Now()
	frames := a.deviceSet.Update()

	perDevice := make(map[string][]devicecore.DetectedObject, len(frames))
	for _, f := range frames {
		perDevice[f.Device] = f.Objects
	}

	if !a.cli.track {
		return
	}

	trackables := a.trackerEngine.Update(perDevice, ts)
	if err := a.pipeline.Observe(trackables, ts); err != nil {
		a.logger.WithError(err).Warn("observer pipeline error")
	}
}

// Shutdown gracefully stops every subsystem (spec §5: "cancellation
// via non-blocking read timeouts + exit hook"). main calls it after
// SIGINT or SIGTERM; a process that ends any other way (log.Fatal,
// os.Exit, SIGKILL) exits without running it, and sinks are not
// stopped.
func (a *app) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancel()

	if err := a.pipeline.Stop(time.Now()); err != nil {
		a.logger.WithError(err).Error("error stopping observer pipeline")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Error("http shutdown error")
		}
	}

	a.running = false
	return nil
}

func printBanner() {
	fmt.Printf("lumagrid %s (%s, %s)\n", version, gitCommit, buildTime)
}
