package core

import "errors"

var (
	// ErrUnsupportedFormat is returned by importers and decoders that do not
	// know how to read a given file.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrInvalidMaterial is returned when a material definition fails to compile.
	ErrInvalidMaterial = errors.New("invalid material")
	// ErrUnknownParameter is returned when a material instance is asked to bind a
	// parameter its material does not declare.
	ErrUnknownParameter = errors.New("unknown material parameter")
	// ErrDestroyed is returned when an engine object is destroyed twice.
	ErrDestroyed = errors.New("object already destroyed")
	// ErrInvalidSize is returned when pixel data does not match the image it is uploaded to.
	ErrInvalidSize = errors.New("invalid buffer size")
	// ErrSwapchainOutOfDate signals that the presentation surface changed and the
	// swapchain has to be recreated before the next frame.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	// ErrNoFrame is returned when a view is rendered outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no frame in flight")
	// ErrIncompleteView is returned when a view lacks a scene or a camera.
	ErrIncompleteView = errors.New("view has no scene or camera")
)
