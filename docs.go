/*
Package vkt is a Vulkan rendering framework and game template for Go. It wraps the setup
chores of a Vulkan application (instance, device, swapchain, frame loop) behind a small
Application type, provides a minimal 3D scene layer (glTF models, actors, a camera), and
implements hot reloading of shaders and model assets: source files edited on disk are
detected by a background FileWatcher and live-swapped into the running frame loop without
tearing GPU resources out from under in-flight work.

The hot reload protocol is the interesting part of this package, and it works like this:

 1. Resources created with hot reload enabled retain an immutable copy of their creation
    parameters (shader source paths and fixed function state for a Pipeline, file path and
    scale for a Model).
 2. The FileWatcher polls the modification time of every registered file on a background
    goroutine. When a file changes it flags every owner registered for that file. The flag
    is an atomic boolean; the watcher goroutine never touches GPU state.
 3. Once per frame, after the frame's work has been submitted, the Reloader scans all
    registered resources and synchronously rebuilds the flagged ones on the render
    goroutine. A rebuild first waits for the device to go idle, then constructs the
    replacement in full before the old object is destroyed. If any step of the rebuild
    fails (a shader that no longer compiles, a model file that no longer parses) the old
    resource stays live and the failure is only logged - a typo in a shader being hot
    edited must never crash the application.

Native objects are exposed on every wrapper through VK-prefixed fields so applications are
not limited by what this package chooses to wrap.
*/
package vkt
