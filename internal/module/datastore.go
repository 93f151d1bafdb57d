package module

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaybot/relaybot/internal/rlog"
)

// Save persists rec's module via the rename-over-tempfile protocol:
// on_save writes a temp file, a true return fsyncs and renames it
// over the live path; on false the temp file is discarded.
// The saved file's mtime is recorded on rec as the expected-mtime token
// so the next tick's TickWatch does not mistake this save for an
// external edit.
func (r *Registry) Save(rec *Record) error {
	saver, ok := rec.Module.(OnSaver)
	if !ok {
		return nil
	}

	dir := filepath.Dir(rec.DataFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(rec.DataFile)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ok2 := saver.OnSave(tmp)
	if !ok2 {
		tmp.Close()
		os.Remove(tmpPath)
		return nil
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, rec.DataFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}

	if info, err := os.Stat(rec.DataFile); err == nil {
		r.mu.Lock()
		rec.expectedMtime = info.ModTime()
		rec.lastKnownMod = info.ModTime()
		r.mu.Unlock()
	}
	return nil
}

// TickWatch is called once per ~250ms tick. For every module flagged
// dirty by the fsnotify watcher since the last tick, it stats the
// data file; if the mtime advanced beyond the token recorded by our
// own last Save, OnModified is invoked. Because this runs from the
// main-loop tick, OnModified never races a concurrent OnSave.
func (r *Registry) TickWatch() {
	r.mu.Lock()
	dirty := r.pendingData
	r.pendingData = make(map[string]bool)
	records := make([]*Record, 0, len(dirty))
	for name := range dirty {
		if rec, ok := r.byName[name]; ok {
			records = append(records, rec)
		}
	}
	r.mu.Unlock()

	for _, rec := range records {
		info, err := os.Stat(rec.DataFile)
		if err != nil {
			continue
		}

		r.mu.Lock()
		expected := rec.expectedMtime
		last := rec.lastKnownMod
		r.mu.Unlock()

		if !info.ModTime().After(last) {
			continue
		}
		if info.ModTime().Equal(expected) {
			// Our own save produced this event.
			r.mu.Lock()
			rec.lastKnownMod = info.ModTime()
			r.mu.Unlock()
			continue
		}

		r.mu.Lock()
		rec.lastKnownMod = info.ModTime()
		r.mu.Unlock()

		if om, ok := rec.Module.(OnModifieder); ok {
			om.OnModified()
		} else {
			rlog.Debug("data file for %q changed externally, but module has no on_modified", rec.Descriptor().Name)
		}
	}
}
