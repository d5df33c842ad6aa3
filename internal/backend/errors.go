package backend

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/foucault/nvfancontrol/internal/errors"
)

const (
	// Lifecycle errors
	ErrUnavailable    = errors.ErrorCode("backend_unavailable")
	ErrNotInitialized = errors.ErrorCode("backend_not_initialized")
	ErrInitFailed     = errors.ErrorCode("backend_init_failed")
	ErrShutdownFailed = errors.ErrorCode("backend_shutdown_failed")

	// Enumeration errors
	ErrNoDevices      = errors.ErrorCode("backend_no_devices")
	ErrDeviceNotFound = errors.ErrorCode("backend_device_not_found")
	ErrFanCountFailed = errors.ErrorCode("backend_fan_count_failed")

	// Sensor and actuator errors
	ErrTemperatureRead = errors.ErrorCode("backend_temperature_read_failed")
	ErrControlModeRead = errors.ErrorCode("backend_control_mode_read_failed")
	ErrFanSpeedRead    = errors.ErrorCode("backend_fan_speed_read_failed")
	ErrRPMUnsupported  = errors.ErrorCode("backend_rpm_unsupported")
	ErrControlMode     = errors.ErrorCode("backend_set_control_mode_failed")
	ErrSetFanSpeed     = errors.ErrorCode("backend_set_fan_speed_failed")
	ErrDriverVersion   = errors.ErrorCode("backend_driver_version_failed")
)

// nvmlError wraps an NVML return code
type nvmlError struct {
	ret nvml.Return
}

func (e *nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
