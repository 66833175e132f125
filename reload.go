package vkt

import (
	"log"
	"sync/atomic"
)

// Reloadable is a GPU resource that retains its original creation parameters
// and can rebuild itself in place from them. TriggerReload is safe to call
// from any goroutine (the FileWatcher calls it from its polling goroutine);
// Reload must only be called from the goroutine that owns GPU submission.
//
// Reload clears the pending flag before attempting the rebuild, so a failed
// attempt does not spin-retry every frame; saving the file again re-arms it.
// A rebuild failure leaves the previously built resource live and usable.
type Reloadable interface {
	TriggerReload()
	WantsReload() bool
	Reload() error
}

// reloadFlag is the cross-goroutine handoff of a pending reload. Embedded by
// every reloadable resource in this package.
type reloadFlag struct {
	wantsReload atomic.Bool
}

func (f *reloadFlag) TriggerReload()    { f.wantsReload.Store(true) }
func (f *reloadFlag) WantsReload() bool { return f.wantsReload.Load() }
func (f *reloadFlag) clearReload()      { f.wantsReload.Store(false) }

// Reloader bridges the watcher's asynchronous change flags and the
// synchronous frame loop. The frame loop calls Process once per frame, after
// submitting the frame's work, on the render goroutine.
type Reloader struct {
	resources []Reloadable
}

// Add registers a resource. Resources are processed in registration order.
// Adding the same resource twice has no effect.
func (r *Reloader) Add(res Reloadable) {
	for _, existing := range r.resources {
		if existing == res {
			return
		}
	}
	r.resources = append(r.resources, res)
}

// Remove deregisters a resource. Call during resource teardown, together with
// FileWatcher.RemoveOwner.
func (r *Reloader) Remove(res Reloadable) {
	for i, existing := range r.resources {
		if existing == res {
			r.resources = append(r.resources[:i], r.resources[i+1:]...)
			return
		}
	}
}

// Process rebuilds every resource with a pending reload. Rebuild failures are
// logged and swallowed here: the resource keeps its previous contents and the
// frame loop must never see a shader typo as an error.
func (r *Reloader) Process() {
	for _, res := range r.resources {
		if !res.WantsReload() {
			continue
		}
		if err := res.Reload(); err != nil {
			log.Printf("reload failed, keeping previous resource: %v", err)
		}
	}
}
