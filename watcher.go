package vkt

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// watchEntry tracks a single file on disk: the modification time it had the
// last time we looked, and the owners to flag when it changes. The watcher
// never dereferences owners beyond calling TriggerReload; it does not own
// them, and callers must RemoveOwner before destroying a registered resource.
type watchEntry struct {
	modTime time.Time
	owners  []Reloadable
	missing bool
}

// FileWatcher detects modifications to registered files by polling their
// modification times on a background goroutine and fans a change out to every
// owner registered for that file.
//
// Polling is deliberate: reloads are rare, human triggered events and a one
// second bound on detection latency is plenty, while a plain stat loop behaves
// identically on every platform the renderer runs on.
type FileWatcher struct {
	mu    sync.Mutex
	files map[string]*watchEntry

	// Interval between polls. Changing it after Start has no effect.
	Interval time.Duration

	// OnFileChanged, if set, replaces the default change handling. It is
	// invoked on the watcher goroutine, once per changed file per poll tick,
	// with every owner registered for that file. The callback must not touch
	// GPU state; flagging owners and logging is the intended extent of it.
	OnFileChanged func(path string, owners []Reloadable)

	done     chan struct{}
	finished chan struct{}
}

// NewFileWatcher returns a watcher with the default one second poll interval.
func NewFileWatcher() *FileWatcher {
	return &FileWatcher{
		files:    make(map[string]*watchEntry),
		Interval: 1000 * time.Millisecond,
	}
}

// AddFile registers interest of owner in path. The file must exist at
// registration time; a missing file is a packaging or programming error, not
// a runtime transient. Registering the same path again appends the owner to
// the existing entry without re-reading the modification time, and a given
// owner is recorded at most once per path. A nil owner registers the path for
// callback-only use.
func (w *FileWatcher) AddFile(path string, owner Reloadable) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.files[path]
	if !ok {
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		entry = &watchEntry{modTime: fi.ModTime()}
		w.files[path] = entry
	}
	if owner == nil {
		return nil
	}
	for _, o := range entry.owners {
		if o == owner {
			return nil
		}
	}
	entry.owners = append(entry.owners, owner)
	return nil
}

// AddPipeline registers every shader source file the pipeline was built from,
// with the pipeline itself as the owner. The pipeline must have been created
// with hot reload enabled.
func (w *FileWatcher) AddPipeline(p *Pipeline) error {
	files := p.ShaderFiles()
	if files == nil {
		return fmt.Errorf("pipeline was not created with hot reload enabled")
	}
	for _, file := range files {
		if err := w.AddFile(file, p); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFile drops path and all its owners from the registry.
func (w *FileWatcher) RemoveFile(path string) {
	w.mu.Lock()
	delete(w.files, path)
	w.mu.Unlock()
}

// RemoveOwner deregisters owner from every file it is registered for. Files
// left without owners stay registered; only the back-reference is removed.
// Callers must invoke this during resource teardown so a later file change
// cannot notify a destroyed resource.
func (w *FileWatcher) RemoveOwner(owner Reloadable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range w.files {
		for i, o := range entry.owners {
			if o == owner {
				entry.owners = append(entry.owners[:i], entry.owners[i+1:]...)
				break
			}
		}
	}
}

// Start begins the polling loop on its own goroutine. Start is not reentrant;
// calling it again without an intervening Stop leaks the previous goroutine.
func (w *FileWatcher) Start() {
	w.done = make(chan struct{})
	w.finished = make(chan struct{})
	go w.watch()
}

// Stop signals the polling loop to terminate and blocks until its goroutine
// has exited. No callback fires after Stop returns. Must be called before the
// owning application is destroyed. Stopping a watcher that was never started
// is a no-op, so teardown paths can call it unconditionally.
func (w *FileWatcher) Stop() {
	if w.done == nil {
		return
	}
	close(w.done)
	<-w.finished
}

func (w *FileWatcher) watch() {
	defer close(w.finished)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll re-stats every registered file and collects the changed ones, then
// notifies outside the lock. A file whose stat fails (deleted out from under
// the watcher, transient share violation while an editor saves) is skipped
// this tick and picked up again once it reappears.
func (w *FileWatcher) poll() {
	type change struct {
		path   string
		owners []Reloadable
	}
	var changes []change

	w.mu.Lock()
	for path, entry := range w.files {
		fi, err := os.Stat(path)
		if err != nil {
			if !entry.missing {
				log.Printf("FileWatcher: could not stat %s: %v", path, err)
				entry.missing = true
			}
			continue
		}
		entry.missing = false
		if !fi.ModTime().Equal(entry.modTime) {
			entry.modTime = fi.ModTime()
			owners := make([]Reloadable, len(entry.owners))
			copy(owners, entry.owners)
			changes = append(changes, change{path: path, owners: owners})
		}
	}
	w.mu.Unlock()

	for _, c := range changes {
		if w.OnFileChanged != nil {
			w.OnFileChanged(c.path, c.owners)
			continue
		}
		log.Printf("%s was modified", c.path)
		for _, owner := range c.owners {
			owner.TriggerReload()
		}
	}
}
