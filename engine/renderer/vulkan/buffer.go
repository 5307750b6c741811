package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-samples/engine/core"
)

// VulkanBuffer is a host visible, persistently mapped transfer source.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64

	mapped unsafe.Pointer
}

func NewStagingBuffer(context *VulkanContext, size uint64) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{Size: size}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		err := fmt.Errorf("failed to create staging buffer: %s", VulkanResultString(res, false))
		core.LogError(err.Error())
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &requirements)
	requirements.Deref()

	flags := uint32(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	index := context.FindMemoryIndex(requirements.MemoryTypeBits, flags)
	if index == -1 {
		buffer.Destroy(context)
		return nil, fmt.Errorf("no host visible memory type for the staging buffer")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &buffer.Memory); res != vk.Success {
		buffer.Destroy(context)
		return nil, fmt.Errorf("failed to allocate staging memory: %s", VulkanResultString(res, false))
	}
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy(context)
		return nil, fmt.Errorf("failed to bind staging memory: %s", VulkanResultString(res, false))
	}
	if res := vk.MapMemory(context.Device.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(size), 0, &buffer.mapped); res != vk.Success {
		buffer.Destroy(context)
		return nil, fmt.Errorf("failed to map staging memory: %s", VulkanResultString(res, false))
	}
	return buffer, nil
}

// LoadPixels copies RGBA8 pixels into the buffer. With bgra set the red and
// blue channels are swapped on the way.
func (vb *VulkanBuffer) LoadPixels(pixels []uint8, bgra bool) {
	n := uint64(len(pixels))
	if n > vb.Size {
		n = vb.Size
	}
	dst := unsafe.Slice((*uint8)(vb.mapped), n)
	if !bgra {
		copy(dst, pixels[:n])
		return
	}
	for i := uint64(0); i+3 < n; i += 4 {
		dst[i+0] = pixels[i+2]
		dst[i+1] = pixels[i+1]
		dst[i+2] = pixels[i+0]
		dst[i+3] = pixels[i+3]
	}
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vb.mapped != nil {
		vk.UnmapMemory(device, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != nil {
		vk.FreeMemory(device, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(device, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
	vb.Size = 0
}
