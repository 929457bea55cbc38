package observer

import (
	"sort"
	"sync"
	"time"

	"github.com/kaelari/lumagrid/internal/tracker"
)

// Pipeline owns the registered Observers and drives their lifecycle
// (spec §4.6: "observers are registered from a JSON key/value-of-map
// configuration or by ad-hoc CLI triples ... start is called when the
// session starts; observe(objectSet) is called at most once per
// frame; stop is called on session stop and process exit").
type Pipeline struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	started   bool
}

// NewPipeline returns an empty Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{observers: make(map[string]*Observer)}
}

// Add registers an observer. If the pipeline has already started, the
// new observer is started immediately so it doesn't miss Start
// semantics relative to its peers.
func (p *Pipeline) Add(o *Observer, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers[o.Name] = o
	if p.started {
		return o.Start(ts)
	}
	return nil
}

// Remove unregisters an observer by name, stopping it first.
func (p *Pipeline) Remove(name string, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.observers[name]
	if !ok {
		return nil
	}
	delete(p.observers, name)
	return o.Stop(ts)
}

// Start starts every registered observer.
func (p *Pipeline) Start(ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	for _, name := range p.sortedNamesLocked() {
		if err := p.observers[name].Start(ts); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every registered observer. Called on session stop and
// guaranteed by the process exit hook (spec §4.6).
func (p *Pipeline) Stop(ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	for _, name := range p.sortedNamesLocked() {
		if err := p.observers[name].Stop(ts); err != nil {
			return err
		}
	}
	return nil
}

// Observe replays trackables through every registered observer, at
// most once per frame (spec §4.6).
func (p *Pipeline) Observe(trackables []*tracker.Trackable, ts time.Time) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, name := range p.sortedNamesLocked() {
		if err := p.observers[name].Observe(trackables, ts); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) sortedNamesLocked() []string {
	names := make([]string, 0, len(p.observers))
	for name := range p.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
