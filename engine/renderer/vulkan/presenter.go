package vulkan

import (
	"fmt"
	"image"
	"math"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-samples/engine/core"
)

// Window is the part of the platform layer the presenter needs.
type Window interface {
	GetRequiredExtensionNames() []string
	GetVulkanGetInstanceProcAddress() unsafe.Pointer
	CreateWindowSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (uint32, uint32)
}

/**
 * @brief VulkanPresenter shows software rendered frames in a window. Every
 * frame is copied into a staging buffer and from there into the acquired
 * swapchain image, which is then presented.
 */
type VulkanPresenter struct {
	window  Window
	context *VulkanContext
	vsync   bool
	debug   bool

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	FrameNumber uint64
}

func New(window Window, vsync, debug bool) *VulkanPresenter {
	return &VulkanPresenter{
		window:  window,
		context: &VulkanContext{},
		vsync:   vsync,
		debug:   debug,
	}
}

func (vp *VulkanPresenter) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := vp.window.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	vp.context.FramebufferWidth = appWidth
	vp.context.FramebufferHeight = appHeight

	if err := vp.createInstance(appName); err != nil {
		return err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vp.window.CreateWindowSurface(vp.context.Instance)
	if err != nil || surface == 0 {
		return fmt.Errorf("failed to create platform surface: %v", err)
	}
	vp.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vp.context); err != nil {
		return err
	}

	sc, err := SwapchainCreate(vp.context, vp.context.FramebufferWidth, vp.context.FramebufferHeight, vp.vsync)
	if err != nil {
		return err
	}
	vp.context.Swapchain = sc

	if err := vp.createFrameResources(); err != nil {
		return err
	}
	vp.context.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	core.LogInfo("Vulkan presenter initialized successfully.")
	return nil
}

func (vp *VulkanPresenter) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{"VK_KHR_surface"}
	requiredExtensions = append(requiredExtensions, vp.window.GetRequiredExtensionNames()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	var layers []string
	if vp.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		if hasInstanceLayer("VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
			core.LogInfo("Validation layers enabled.")
		} else {
			core.LogWarn("Validation layer VK_LAYER_KHRONOS_validation is missing, continuing without it.")
		}
	}
	for _, name := range requiredExtensions {
		core.LogDebug("Required extension: %s", name)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vp.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	vp.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vp.debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			vp.context.debugMessenger = dbg
		}
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success || count == 0 {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		end := FindFirstZeroInByteArray(layers[i].LayerName[:])
		if string(layers[i].LayerName[:end]) == name {
			return true
		}
	}
	return false
}

// createFrameResources creates the command buffer, semaphores and fence of
// every frame in flight. Staging buffers are created on first use.
func (vp *VulkanPresenter) createFrameResources() error {
	ctx := vp.context
	n := int(ctx.Swapchain.MaxFramesInFlight)
	ctx.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, n)
	ctx.ImageAvailableSemaphores = make([]vk.Semaphore, n)
	ctx.QueueCompleteSemaphores = make([]vk.Semaphore, n)
	ctx.InFlightFences = make([]*VulkanFence, n)
	ctx.StagingBuffers = make([]*VulkanBuffer, n)

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	for i := 0; i < n; i++ {
		cb, err := NewVulkanCommandBuffer(ctx, ctx.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		ctx.GraphicsCommandBuffers[i] = cb

		if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &ctx.ImageAvailableSemaphores[i]); res != vk.Success {
			return fmt.Errorf("failed to create semaphore on image available: %s", VulkanResultString(res, false))
		}
		if res := vk.CreateSemaphore(ctx.Device.LogicalDevice, &semaphoreCreateInfo, ctx.Allocator, &ctx.QueueCompleteSemaphores[i]); res != vk.Success {
			return fmt.Errorf("failed to create semaphore on queue complete: %s", VulkanResultString(res, false))
		}

		// Signaled, so the first wait on each frame returns at once.
		f, err := NewFence(ctx, true)
		if err != nil {
			return err
		}
		ctx.InFlightFences[i] = f
	}
	core.LogDebug("Vulkan frame resources created.")
	return nil
}

// Resized records the new framebuffer size. The swapchain is recreated on the
// next Present.
func (vp *VulkanPresenter) Resized(width, height uint32) {
	vp.cachedFramebufferWidth = width
	vp.cachedFramebufferHeight = height
	vp.context.FramebufferSizeGeneration++
	core.LogDebug("Vulkan presenter resized: w/h/gen: %d/%d/%d", width, height, vp.context.FramebufferSizeGeneration)
}

/**
 * @brief Present copies frame into the next swapchain image and queues it for
 * display. Frames larger than the swapchain are cropped. Nothing is shown
 * while the window is minimized or the swapchain is being recreated.
 */
func (vp *VulkanPresenter) Present(frame *image.RGBA) error {
	ctx := vp.context
	if ctx.RecreatingSwapchain {
		return nil
	}
	if ctx.FramebufferSizeGeneration != ctx.FramebufferSizeLastGeneration {
		if err := vp.recreateSwapchain(); err != nil {
			return err
		}
		core.LogDebug("Resized, booting.")
		return nil
	}

	frameIndex := ctx.CurrentFrame
	fence := ctx.InFlightFences[frameIndex]
	if !fence.Wait(ctx, math.MaxUint64) {
		return fmt.Errorf("in-flight fence wait failure")
	}

	imageIndex, ok, err := ctx.Swapchain.SwapchainAcquireNextImageIndex(ctx, math.MaxUint64, ctx.ImageAvailableSemaphores[frameIndex], vk.NullFence)
	if err != nil {
		return err
	}
	if !ok {
		vp.requestRecreate()
		return nil
	}
	ctx.ImageIndex = imageIndex

	staging, err := vp.stagingBuffer(uint64(len(frame.Pix)))
	if err != nil {
		return err
	}
	staging.LoadPixels(frame.Pix, ctx.Swapchain.IsBGRA())

	cb := ctx.GraphicsCommandBuffers[frameIndex]
	cb.Reset()
	if err := cb.Begin(true); err != nil {
		return err
	}
	vp.recordCopy(cb, staging, frame, ctx.Swapchain.Images[imageIndex])
	if err := cb.End(); err != nil {
		return err
	}

	// Make sure the previous frame is not using this image.
	if inFlight := ctx.ImagesInFlight[imageIndex]; inFlight != nil && inFlight != fence {
		inFlight.Wait(ctx, math.MaxUint64)
	}
	ctx.ImagesInFlight[imageIndex] = fence
	if err := fence.Reset(ctx); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{ctx.ImageAvailableSemaphores[frameIndex]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageTransferBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{ctx.QueueCompleteSemaphores[frameIndex]},
	}
	if result := vk.QueueSubmit(ctx.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); result != vk.Success {
		err := fmt.Errorf("vkQueueSubmit failed with result: %s", VulkanResultString(result, true))
		core.LogError(err.Error())
		return err
	}
	cb.UpdateSubmitted()

	current, err := ctx.Swapchain.SwapchainPresent(ctx, ctx.Device.PresentQueue, ctx.QueueCompleteSemaphores[frameIndex], imageIndex)
	if err != nil {
		return err
	}
	if !current {
		vp.requestRecreate()
	}
	vp.FrameNumber++
	return nil
}

func (vp *VulkanPresenter) recordCopy(cb *VulkanCommandBuffer, staging *VulkanBuffer, frame *image.RGBA, target vk.Image) {
	extent := vp.context.Swapchain.Extent
	width := uint32(frame.Rect.Dx())
	height := uint32(frame.Rect.Dy())
	if width > extent.Width {
		width = extent.Width
	}
	if height > extent.Height {
		height = extent.Height
	}

	cb.ImageBarrier(target,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		0, vk.AccessTransferWriteBit,
		vk.PipelineStageTransferBit, vk.PipelineStageTransferBit)

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   uint32(frame.Stride / 4),
		BufferImageHeight: uint32(frame.Rect.Dy()),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.Handle, staging.Handle, target, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	cb.ImageBarrier(target,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessTransferWriteBit, vk.AccessMemoryReadBit,
		vk.PipelineStageTransferBit, vk.PipelineStageBottomOfPipeBit)
}

// stagingBuffer returns the buffer of the current frame, growing it when the
// frame got bigger.
func (vp *VulkanPresenter) stagingBuffer(size uint64) (*VulkanBuffer, error) {
	ctx := vp.context
	current := ctx.StagingBuffers[ctx.CurrentFrame]
	if current != nil && current.Size >= size {
		return current, nil
	}
	if current != nil {
		// the fence of this frame was waited on, the buffer is idle
		current.Destroy(ctx)
	}
	b, err := NewStagingBuffer(ctx, size)
	if err != nil {
		return nil, err
	}
	ctx.StagingBuffers[ctx.CurrentFrame] = b
	return b, nil
}

func (vp *VulkanPresenter) requestRecreate() {
	w, h := vp.window.FramebufferSize()
	vp.Resized(w, h)
}

func (vp *VulkanPresenter) recreateSwapchain() error {
	ctx := vp.context
	if vp.cachedFramebufferWidth == 0 || vp.cachedFramebufferHeight == 0 {
		// minimized
		return nil
	}
	ctx.RecreatingSwapchain = true
	defer func() { ctx.RecreatingSwapchain = false }()

	vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
	if err := DeviceQuerySwapchainSupport(ctx.Device.PhysicalDevice, ctx.Surface, &ctx.Device.SwapchainSupport); err != nil {
		return err
	}

	sc, err := ctx.Swapchain.SwapchainRecreate(ctx, vp.cachedFramebufferWidth, vp.cachedFramebufferHeight, vp.vsync)
	if err != nil {
		return err
	}
	ctx.Swapchain = sc
	ctx.ImagesInFlight = make([]*VulkanFence, sc.ImageCount)

	ctx.FramebufferWidth = vp.cachedFramebufferWidth
	ctx.FramebufferHeight = vp.cachedFramebufferHeight
	ctx.FramebufferSizeLastGeneration = ctx.FramebufferSizeGeneration
	return nil
}

func (vp *VulkanPresenter) Shutdown() error {
	ctx := vp.context
	if ctx.Device == nil || ctx.Device.LogicalDevice == nil {
		return vp.destroyInstance()
	}
	vk.DeviceWaitIdle(ctx.Device.LogicalDevice)

	// Destroy in the opposite order of creation.
	for i := range ctx.InFlightFences {
		if ctx.ImageAvailableSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, ctx.ImageAvailableSemaphores[i], ctx.Allocator)
		}
		if ctx.QueueCompleteSemaphores[i] != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.Device.LogicalDevice, ctx.QueueCompleteSemaphores[i], ctx.Allocator)
		}
		if f := ctx.InFlightFences[i]; f != nil {
			f.Destroy(ctx)
		}
		if b := ctx.StagingBuffers[i]; b != nil {
			b.Destroy(ctx)
		}
		if cb := ctx.GraphicsCommandBuffers[i]; cb != nil {
			cb.Free(ctx, ctx.Device.GraphicsCommandPool)
		}
	}
	ctx.ImageAvailableSemaphores = nil
	ctx.QueueCompleteSemaphores = nil
	ctx.InFlightFences = nil
	ctx.StagingBuffers = nil
	ctx.GraphicsCommandBuffers = nil
	ctx.ImagesInFlight = nil

	if ctx.Swapchain != nil {
		ctx.Swapchain.SwapchainDestroy(ctx)
		ctx.Swapchain = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(ctx)
	return vp.destroyInstance()
}

func (vp *VulkanPresenter) destroyInstance() error {
	ctx := vp.context
	if ctx.Instance == nil {
		return nil
	}
	core.LogDebug("Destroying Vulkan surface...")
	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(ctx.Instance, ctx.Allocator)
	ctx.Instance = nil
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
