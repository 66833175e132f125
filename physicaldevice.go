package vkt

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// PhysicalDevice wraps a Vulkan physical device.
type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

func (p *PhysicalDevice) QueueFamilies() (QueueFamilySlice, error) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, nil)
	if count == 0 {
		return nil, nil
	}

	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, properties)

	ret := make(QueueFamilySlice, count)
	for i, props := range properties {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: props}
		ret[i].VKQueueFamilyProperties.Deref()
	}
	return ret, nil
}

// CreateDeviceOptions selects extensions, layers and features for logical
// device creation.
type CreateDeviceOptions struct {
	EnabledExtensions []string
	EnabledLayers     []string
	EnabledFeatures   *vk.PhysicalDeviceFeatures
}

func (p *PhysicalDevice) CreateLogicalDevice(qfs QueueFamilySlice, options *CreateDeviceOptions) (*Device, error) {
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(qfs))
	for i, q := range qfs {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(q.Index),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	var features vk.PhysicalDeviceFeatures
	if options != nil && options.EnabledFeatures != nil {
		features = *options.EnabledFeatures
	} else {
		vk.GetPhysicalDeviceFeatures(p.VKPhysicalDevice, &features)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(qfs)),
		PQueueCreateInfos:    queueCreateInfos,
		PEnabledFeatures:     []vk.PhysicalDeviceFeatures{features},
	}
	if options != nil {
		if options.EnabledExtensions != nil {
			deviceCreateInfo.EnabledExtensionCount = uint32(len(options.EnabledExtensions))
			deviceCreateInfo.PpEnabledExtensionNames = safeStrings(options.EnabledExtensions)
		}
		if options.EnabledLayers != nil {
			deviceCreateInfo.EnabledLayerCount = uint32(len(options.EnabledLayers))
			deviceCreateInfo.PpEnabledLayerNames = safeStrings(options.EnabledLayers)
		}
	}

	var ldevice vk.Device
	err := vk.Error(vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice))
	if err != nil {
		return nil, err
	}
	return &Device{PhysicalDevice: p, VKDevice: ldevice}, nil
}

func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(p.VKPhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		mt := memoryProperties.MemoryTypes[i]
		mt.Deref()
		if memoryTypeBits&(1<<i) != 0 && mt.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no matching memory type found")
}

func (p *PhysicalDevice) GetSurfaceCapabilities(surface vk.Surface) (*vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps))
	if err != nil {
		return nil, err
	}
	return &caps, nil
}

func (p *PhysicalDevice) GetSurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil))
	if err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, formats))
	if err != nil {
		return nil, err
	}
	return formats, nil
}

func (p *PhysicalDevice) GetSurfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil))
	if err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	err = vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, modes))
	if err != nil {
		return nil, err
	}
	return modes, nil
}
