package module

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/relaybot/relaybot/internal/rlog"
)

// APIVersion is incremented whenever the Services surface grows, the
// Go analogue of original_source/src/module.h's INSO_CORE_API_VERSION.
const APIVersion = 3

// artifactSymbol is the exported symbol a module plugin must provide:
// a func() module.Module constructor, the dynamic-loading equivalent
// of insobot's "irc_mod_ctx" struct symbol.
const artifactSymbol = "RelaybotModule"
const versionSymbol = "RelaybotAPIVersion"

// InstalledNotice is emitted on the Notify channel whenever a module
// is installed, so components such as the dispatcher can invalidate
// ordering caches.
type InstalledNotice struct {
	Name string
}

// Registry discovers, loads, tracks and hot-reloads modules. It owns
// the live module set; all mutation happens here, all dispatch-facing
// reads go through Snapshot, which returns an immutable copy so an
// in-flight callback into an old Record is unaffected by a concurrent
// reload.
type Registry struct {
	mu      sync.Mutex
	records []*Record
	byName  map[string]*Record
	seq     uint64

	moduleDir string
	dataDir   string

	dataWatcher   *fsnotify.Watcher
	moduleWatcher *fsnotify.Watcher

	pendingData    map[string]bool // module name -> external write observed
	pendingModules map[string]bool // artifact path -> write observed

	Notify chan InstalledNotice
}

func NewRegistry(moduleDir, dataDir string) (*Registry, error) {
	r := &Registry{
		byName:         make(map[string]*Record),
		moduleDir:      moduleDir,
		dataDir:        dataDir,
		pendingData:    make(map[string]bool),
		pendingModules: make(map[string]bool),
		Notify:         make(chan InstalledNotice, 16),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("data watcher: %w", err)
	}
	if err := dw.Add(dataDir); err != nil {
		dw.Close()
		return nil, fmt.Errorf("watch data dir: %w", err)
	}
	r.dataWatcher = dw
	go r.pumpDataEvents()

	if _, err := os.Stat(moduleDir); err == nil {
		mw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("module watcher: %w", err)
		}
		if err := mw.Add(moduleDir); err != nil {
			mw.Close()
			return nil, fmt.Errorf("watch module dir: %w", err)
		}
		r.moduleWatcher = mw
		go r.pumpModuleEvents()
	}

	return r, nil
}

func (r *Registry) Close() {
	if r.dataWatcher != nil {
		r.dataWatcher.Close()
	}
	if r.moduleWatcher != nil {
		r.moduleWatcher.Close()
	}
}

// pumpDataEvents only ever flips a flag; the module callback it
// eventually triggers (OnModified) runs from the tick goroutine so
// every module callback still executes on the single dispatch thread.
func (r *Registry) pumpDataEvents() {
	for ev := range r.dataWatcher.Events {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		name := strings.TrimSuffix(filepath.Base(ev.Name), ".data")
		r.mu.Lock()
		r.pendingData[name] = true
		r.mu.Unlock()
	}
}

func (r *Registry) pumpModuleEvents() {
	for ev := range r.moduleWatcher.Events {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		r.mu.Lock()
		r.pendingModules[ev.Name] = true
		r.mu.Unlock()
	}
}

// Register installs an in-process module directly, without going
// through a plugin artifact. Built-in modules (helloworld, chans) use
// this; it is also what Discover uses once a plugin has been opened.
func (r *Registry) Register(m Module, artifactPath string, artifactTS time.Time, svc Services) error {
	desc := m.Descriptor()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.byName[desc.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("module %q already loaded: later-loaded module refused", desc.Name)
	}
	r.mu.Unlock()

	if oi, ok := m.(OnIniter); ok {
		if !oi.OnInit(svc) {
			return fmt.Errorf("module %q: on_init refused installation", desc.Name)
		}
	}

	r.mu.Lock()
	r.seq++
	rec := &Record{
		Module:     m,
		DataFile:   filepath.Join(r.dataDir, desc.Name+".data"),
		LoadedAt:   time.Now(),
		Seq:        r.seq,
		ArtifactTS: artifactTS,
	}
	r.records = append(r.records, rec)
	r.byName[desc.Name] = rec
	r.mu.Unlock()

	select {
	case r.Notify <- InstalledNotice{Name: desc.Name}:
	default:
	}
	rlog.Info("module %q installed (priority=%d)", desc.Name, desc.Priority)
	return nil
}

// Discover enumerates *.so artifacts in moduleDir, loads each, and
// installs the ones that bind and initialize successfully. Artifacts
// that fail to bind or report an incompatible API version are logged
// and skipped; Discover never fails the whole process.
func (r *Registry) Discover(svc Services) {
	entries, err := os.ReadDir(r.moduleDir)
	if err != nil {
		rlog.Info("module discovery: %v (no dynamic modules loaded)", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".so") {
			continue
		}
		path := filepath.Join(r.moduleDir, e.Name())
		if err := r.loadArtifact(path, svc); err != nil {
			rlog.Warn("module artifact %q: %v", path, err)
		}
	}
}

func (r *Registry) loadArtifact(path string, svc Services) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	vsym, err := p.Lookup(versionSymbol)
	if err != nil {
		return fmt.Errorf("missing %s symbol: %w", versionSymbol, err)
	}
	version, ok := vsym.(*int)
	if !ok || *version != APIVersion {
		return fmt.Errorf("incompatible API version (want %d)", APIVersion)
	}

	csym, err := p.Lookup(artifactSymbol)
	if err != nil {
		return fmt.Errorf("missing %s symbol: %w", artifactSymbol, err)
	}
	ctor, ok := csym.(func() Module)
	if !ok {
		return fmt.Errorf("%s has wrong type", artifactSymbol)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	return r.Register(ctor(), path, info.ModTime(), svc)
}

// CheckReloads compares each loaded artifact's on-disk mtime against
// the timestamp recorded at load time and reloads any that changed.
// Only artifacts flagged dirty by the fsnotify watcher since the last
// check are stat'd, to keep this cheap on every tick.
func (r *Registry) CheckReloads(svc Services) {
	r.mu.Lock()
	dirty := r.pendingModules
	r.pendingModules = make(map[string]bool)
	r.mu.Unlock()

	for path := range dirty {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := r.reloadPath(path, info.ModTime(), svc); err != nil {
			rlog.Warn("reload %q: %v", path, err)
		}
	}
}

func (r *Registry) reloadPath(path string, ts time.Time, svc Services) error {
	p, err := plugin.Open(path)
	if err != nil {
		return err
	}
	vsym, err := p.Lookup(versionSymbol)
	if err != nil {
		return fmt.Errorf("missing %s symbol: %w", versionSymbol, err)
	}
	if version, ok := vsym.(*int); !ok || *version != APIVersion {
		return fmt.Errorf("incompatible API version (want %d)", APIVersion)
	}
	csym, err := p.Lookup(artifactSymbol)
	if err != nil {
		return err
	}
	ctor, ok := csym.(func() Module)
	if !ok {
		return fmt.Errorf("%s has wrong type", artifactSymbol)
	}
	newMod := ctor()
	desc := newMod.Descriptor()

	r.mu.Lock()
	old, exists := r.byName[desc.Name]
	r.mu.Unlock()
	if !exists {
		return r.Register(newMod, path, ts, svc)
	}
	if !ts.After(old.ArtifactTS) {
		return nil
	}

	if oi, ok := newMod.(OnIniter); ok {
		if !oi.OnInit(svc) {
			return fmt.Errorf("reload refused by on_init, keeping previous version")
		}
	}

	r.mu.Lock()
	r.seq++
	newRec := &Record{
		Module:     newMod,
		DataFile:   old.DataFile,
		LoadedAt:   old.LoadedAt,
		Seq:        old.Seq,
		ArtifactTS: ts,
	}
	for i, rec := range r.records {
		if rec == old {
			r.records[i] = newRec
			break
		}
	}
	r.byName[desc.Name] = newRec
	r.mu.Unlock()

	if oq, ok := old.Module.(OnQuiter); ok {
		oq.OnQuit()
	}
	rlog.Info("module %q reloaded", desc.Name)
	return nil
}

// Remove unloads a module by name, used for explicit unload requests
// such as a crashed module's callback panicking mid-dispatch.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	for i, other := range r.records {
		if other == rec {
			r.records = append(r.records[:i], r.records[i+1:]...)
			break
		}
	}
}

// Snapshot returns an ordered copy of the live module set: descending
// priority, ties broken by load order. When
// channelOnly is true, Global modules are excluded.
func (r *Registry) Snapshot(channelOnly bool) []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		if channelOnly && rec.Descriptor().Is(Global) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Descriptor().Priority, out[j].Descriptor().Priority
		if pi != pj {
			return pi > pj
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (r *Registry) Lookup(name string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[name]
	return rec, ok
}

func (r *Registry) All() []*Record {
	return r.Snapshot(false)
}
