package crypto

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/msscs/internal/config"
)

func TestHasAESHardwareSupport(t *testing.T) {
	_ = HasAESHardwareSupport()
}

func TestIsHardwareAccelerationEnabled(t *testing.T) {
	cfg := config.HardwareConfig{EnableAESNI: true, EnableARMv8AES: true}
	require.Equal(t, HasAESHardwareSupport(), IsHardwareAccelerationEnabled(cfg))

	if HasAESHardwareSupport() && (runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64") {
		disabled := config.HardwareConfig{EnableAESNI: false, EnableARMv8AES: false}
		require.False(t, IsHardwareAccelerationEnabled(disabled))
	}
}

func TestGetHardwareAccelerationInfo(t *testing.T) {
	info := GetHardwareAccelerationInfo(nil)
	for _, field := range []string{"aes_hardware_support", "architecture", "goos", "go_version"} {
		require.Contains(t, info, field)
	}

	cfg := &config.HardwareConfig{EnableAESNI: true, EnableARMv8AES: true}
	withCfg := GetHardwareAccelerationInfo(cfg)
	require.Contains(t, withCfg, "aes_ni_enabled")
	require.Contains(t, withCfg, "hardware_acceleration_active")
}
