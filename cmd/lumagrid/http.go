package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kaelari/lumagrid/internal/configstore"
)

// startHTTPServer wires the admin mux of spec §6.5: JSON GETs for
// `/get /status /deviceList`, POST-ish GETs for `/start /stop /scanEnv
// /saveEnv /move /checkpoint`. Grounded on cmd/valkyrie/main.go's
// startHTTPServer: a flat http.ServeMux, one handler per route, JSON
// encoded directly onto the ResponseWriter.
func (a *app) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/get", a.getHandler)
	mux.HandleFunc("/status", a.statusHandler)
	mux.HandleFunc("/deviceList", a.deviceListHandler)
	mux.HandleFunc("/start", a.startSessionHandler)
	mux.HandleFunc("/stop", a.stopSessionHandler)
	mux.HandleFunc("/scanEnv", a.scanEnvHandler)
	mux.HandleFunc("/saveEnv", a.saveEnvHandler)
	mux.HandleFunc("/move", a.moveHandler)
	mux.HandleFunc("/checkpoint", a.checkpointHandler)
	if a.wsSink != nil {
		mux.HandleFunc("/ws/observe", a.wsSink.HandleWebSocket)
	}

	a.httpServer = &http.Server{Addr: a.cli.httpAddr, Handler: mux}
	go func() {
		a.logger.WithFields(map[string]interface{}{"addr": a.cli.httpAddr}).Info("admin http listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("admin http server exited")
		}
	}()
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"status": "ok", "service": "lumagrid", "version": version})
}

// getHandler returns an arbitrary config key (spec §6.5 `/get`), read
// from defaults.json via the ?key= query parameter.
func (a *app) getHandler(w http.ResponseWriter, r *http.Request) {
	kv, err := a.store.ReadKV(configstore.DefaultsFile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, kv)
		return
	}
	writeJSON(w, map[string]string{key: kv[key]})
}

func (a *app) statusHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	writeJSON(w, map[string]interface{}{
		"running":         a.running,
		"simulation_mode": a.deviceSet.SimulationMode(),
		"tracking":        a.cli.track,
		"fps":             a.cli.fps,
		"availability":    a.deviceSet.Availability(),
	})
}

func (a *app) deviceListHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.deviceSet.Availability())
}

func (a *app) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	ts := time.Now()
	if err := a.pipeline.Start(ts); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

func (a *app) stopSessionHandler(w http.ResponseWriter, r *http.Request) {
	ts := time.Now()
	if err := a.pipeline.Stop(ts); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "stopped"})
}

// scanEnvHandler starts environment-scan mode on every device core.
func (a *app) scanEnvHandler(w http.ResponseWriter, r *http.Request) {
	for _, core := range a.cores {
		core.StartEnvScan()
	}
	writeJSON(w, map[string]string{"status": "scanning"})
}

func (a *app) saveEnvHandler(w http.ResponseWriter, r *http.Request) {
	for name, core := range a.cores {
		if err := a.store.WriteDeviceEnv(name, core.ReadEnv()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "saved"})
}

// moveHandler starts a registration window (spec §4.3: operator moves
// a marker through the overlap region; devices cross-correlate the
// samples they see into a shared pose).
func (a *app) moveHandler(w http.ResponseWriter, r *http.Request) {
	a.deviceSet.StartRegistration(10 * time.Second)
	writeJSON(w, map[string]string{"status": "registering"})
}

// checkpointHandler snapshots the config store (spec §6.3/§6.5:
// `/checkpoint?commit=1`).
func (a *app) checkpointHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("commit") != "1" {
		writeJSON(w, map[string]string{"status": "dry-run"})
		return
	}
	name, err := a.store.Checkpoint(time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "checkpointed", "tag": name})
}
