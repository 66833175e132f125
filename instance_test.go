package vkt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestDefaultDebugCallbackNeverAborts(t *testing.T) {
	severities := []vk.DebugReportFlags{
		vk.DebugReportFlags(vk.DebugReportWarningBit),
		vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit),
		vk.DebugReportFlags(vk.DebugReportErrorBit),
		vk.DebugReportFlags(vk.DebugReportInformationBit),
	}

	for _, flags := range severities {
		ret := DefaultDebugCallback(flags, vk.DebugReportObjectTypeUnknown,
			0, 0, 0, "validation", "message", nil)
		assert.Equal(t, vk.Bool32(vk.False), ret,
			"validation messages are logged, never abort the triggering call")
	}
}
