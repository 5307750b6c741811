package renderer

import "image"

// Presenter displays finished frames, typically in a window.
type Presenter interface {
	Initialize(appName string, width, height uint32) error
	// Resized is called with the new framebuffer size in pixels.
	Resized(width, height uint32)
	Present(frame *image.RGBA) error
	Shutdown() error
}
