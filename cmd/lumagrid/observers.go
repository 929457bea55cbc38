package main

import (
	"encoding/binary"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kaelari/lumagrid/internal/observer"
	"github.com/kaelari/lumagrid/internal/recorder"
	"github.com/kaelari/lumagrid/internal/region"
	"github.com/kaelari/lumagrid/pkg/utils"
)

// parseAdHocObserver splits a `+observer` argument (spec §6.4: `+observer
// <@k=v,...>`) into its name and settings map. The form is
// `name@key=value,key=value,...`; the same settings shape observer.json
// uses per-observer, so both CLI and config-file observers share
// buildObserver below.
func parseAdHocObserver(raw string) (name string, settings map[string]string, err error) {
	at := strings.Index(raw, "@")
	if at < 0 {
		return "", nil, usageErrorf("+observer %q: expected name@key=val,...", raw)
	}
	name = raw[:at]
	settings = make(map[string]string)
	for _, pair := range strings.Split(raw[at+1:], ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return "", nil, usageErrorf("+observer %q: malformed setting %q", raw, pair)
		}
		settings[kv[0]] = kv[1]
	}
	if name == "" {
		return "", nil, usageErrorf("+observer %q: missing name before '@'", raw)
	}
	return name, settings, nil
}

// buildObserver constructs an Observer from a settings map shaped like
// one observer.json entry (spec §6.3/§4.6): `regions` binds it to a
// region/tag expression (unbound falls back to the world table per
// observer.NewObserver), `filter` selects its rendered fields, `fps`
// caps its rate, `useImmobile` selects the spec §8 S5 Move-suppression
// policy (default true, keep emitting Move), and `sink` (plus
// sink-specific keys) builds its delivery mechanism.
func (a *app) buildObserver(name string, settings map[string]string) (*observer.Observer, error) {
	binding := region.Binding{}
	if expr, ok := settings["regions"]; ok {
		binding = region.ParseBinding(expr, a.regions)
	}

	filter := observer.DefaultFilter()
	if expr, ok := settings["filter"]; ok {
		filter = observer.ParseFilter(expr)
	}

	maxFPS := a.cli.fps
	if v, ok := settings["fps"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, usageErrorf("observer %s: fps: %v", name, err)
		}
		maxFPS = f
	}

	sink, err := a.buildSink(settings)
	if err != nil {
		return nil, err
	}

	o := observer.NewObserver(name, binding, filter, maxFPS, sink)
	if v, ok := settings["useImmobile"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, usageErrorf("observer %s: useImmobile: %v", name, err)
		}
		o.UseImmobile = b
	}
	if v, ok := settings["immobileTimeout"]; ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, usageErrorf("observer %s: immobileTimeout: %v", name, err)
		}
		o.ImmobileTimeout = time.Duration(secs) * time.Second
	}
	if v, ok := settings["immobileDistance"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, usageErrorf("observer %s: immobileDistance: %v", name, err)
		}
		o.ImmobileDistance = f
	}
	return o, nil
}

// buildSink dispatches on the `sink` setting to one of the ten
// delivery mechanisms of spec §4.6.1.
func (a *app) buildSink(settings map[string]string) (observer.Sink, error) {
	kind := settings["sink"]
	switch kind {
	case "", "file":
		f, err := openAppend(settings["path"])
		if err != nil {
			return nil, err
		}
		return observer.NewFileSink(f), nil

	case "packedfile":
		f, err := openAppend(settings["path"])
		if err != nil {
			return nil, err
		}
		return observer.NewPackedFileSink(recorder.NewWriter(f, binary.BigEndian)), nil

	case "bash":
		path := settings["path"]
		if path == "" {
			return nil, usageErrorf("bash sink: missing path")
		}
		timeout := 5 * time.Second
		if v, ok := settings["timeout"]; ok {
			secs, err := strconv.Atoi(v)
			if err != nil {
				return nil, usageErrorf("bash sink: timeout: %v", err)
			}
			timeout = time.Duration(secs) * time.Second
		}
		return observer.NewBashSink(observer.NewCommandRunner(path, timeout)), nil

	case "osc", "udp":
		addrStr := settings["addr"]
		if addrStr == "" {
			return nil, usageErrorf("osc sink: missing addr")
		}
		udpAddr, err := net.ResolveUDPAddr("udp", addrStr)
		if err != nil {
			return nil, err
		}
		conn, err := net.ListenUDP("udp", nil)
		if err != nil {
			return nil, err
		}
		scheme := settings["scheme"]
		if scheme == "" {
			scheme = "/{region}"
		}
		return observer.NewUDPOSCSink(conn, udpAddr, scheme), nil

	case "websocket":
		return a.wsSink, nil

	case "eval":
		path := settings["path"]
		if path == "" {
			return nil, usageErrorf("eval sink: missing path")
		}
		return observer.NewEvalSink(path), nil

	case "influxdb":
		measurement := settings["measurement"]
		if measurement == "" {
			measurement = "presence"
		}
		batch := 50
		if v, ok := settings["batch"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, usageErrorf("influxdb sink: batch: %v", err)
			}
			batch = n
		}
		interval := 10 * time.Second
		if v, ok := settings["interval"]; ok {
			secs, err := strconv.Atoi(v)
			if err != nil {
				return nil, usageErrorf("influxdb sink: interval: %v", err)
			}
			interval = time.Duration(secs) * time.Second
		}
		return observer.NewInfluxDBSink(settings["url"], settings["token"], measurement, batch, interval), nil

	case "heatmap", "flowmap", "tracemap":
		scale, width, height, err := imageGeometryFromSettings(settings)
		if err != nil {
			return nil, err
		}
		transform := observer.NewImageTransform(utils.IdentityPose(), scale, width, height)
		flushInterval := 30 * time.Second
		if v, ok := settings["flushInterval"]; ok {
			secs, err := strconv.Atoi(v)
			if err != nil {
				return nil, usageErrorf("%s sink: flushInterval: %v", kind, err)
			}
			flushInterval = time.Duration(secs) * time.Second
		}
		path := settings["path"]
		if path == "" {
			return nil, usageErrorf("%s sink: missing path", kind)
		}
		switch kind {
		case "heatmap":
			kernelSize := 9
			if v, ok := settings["kernelSize"]; ok {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, usageErrorf("heatmap sink: kernelSize: %v", err)
				}
				kernelSize = n
			}
			sigma := 2.0
			if v, ok := settings["sigma"]; ok {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, usageErrorf("heatmap sink: sigma: %v", err)
				}
				sigma = f
			}
			return observer.NewHeatMapSink(transform, path, flushInterval, kernelSize, sigma), nil
		case "flowmap":
			return observer.NewFlowMapSink(transform, path, flushInterval), nil
		default:
			return observer.NewTraceMapSink(transform, path, flushInterval), nil
		}

	default:
		return nil, usageErrorf("unknown sink type %q", kind)
	}
}

func imageGeometryFromSettings(settings map[string]string) (scale float64, width, height int, err error) {
	scale, width, height = 50.0, 400, 400
	if v, ok := settings["scale"]; ok {
		if scale, err = strconv.ParseFloat(v, 64); err != nil {
			return 0, 0, 0, usageErrorf("scale: %v", err)
		}
	}
	if v, ok := settings["width"]; ok {
		if width, err = strconv.Atoi(v); err != nil {
			return 0, 0, 0, usageErrorf("width: %v", err)
		}
	}
	if v, ok := settings["height"]; ok {
		if height, err = strconv.Atoi(v); err != nil {
			return 0, 0, 0, usageErrorf("height: %v", err)
		}
	}
	return scale, width, height, nil
}

func openAppend(path string) (*os.File, error) {
	if path == "" {
		return nil, usageErrorf("sink: missing path")
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
