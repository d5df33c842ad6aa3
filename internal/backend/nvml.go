package backend

import (
	"sort"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/logger"
)

// NVML drives NVIDIA GPUs through the NVML library. A negative gpu index
// selects every device in the system, otherwise only the given one.
type NVML struct {
	gpu         int
	initialized bool
	devices     map[int]nvml.Device
}

var _ Backend = (*NVML)(nil)

// NewNVML creates an NVML backend restricted to gpu, or to all GPUs when
// gpu is negative. Init must be called before any other operation.
func NewNVML(gpu int) *NVML {
	return &NVML{gpu: gpu}
}

func (b *NVML) Init() error {
	errFactory := errors.New()
	if b.initialized {
		return nil
	}

	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		nvml.Shutdown()
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}
	if count == 0 {
		nvml.Shutdown()
		return errFactory.New(ErrNoDevices)
	}

	if b.gpu >= count {
		nvml.Shutdown()
		return errFactory.WithData(ErrDeviceNotFound, b.gpu)
	}

	b.devices = make(map[int]nvml.Device)
	for i := 0; i < count; i++ {
		if b.gpu >= 0 && i != b.gpu {
			continue
		}

		device, ret := nvml.DeviceGetHandleByIndex(i)
		if !IsNVMLSuccess(ret) {
			nvml.Shutdown()
			return errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
		}

		if name, ret := device.GetName(); IsNVMLSuccess(ret) {
			logger.Info().Msgf("Detected GPU %d: %v", i, name)
		}

		b.devices[i] = device
	}

	b.initialized = true

	return nil
}

func (b *NVML) Shutdown() error {
	errFactory := errors.New()
	if !b.initialized {
		return nil
	}

	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	b.initialized = false
	b.devices = nil

	return nil
}

func (b *NVML) DriverVersion() (string, error) {
	errFactory := errors.New()
	if !b.initialized {
		return "", errFactory.New(ErrNotInitialized)
	}

	version, ret := nvml.SystemGetDriverVersion()
	if !IsNVMLSuccess(ret) {
		return "", errFactory.Wrap(ErrDriverVersion, newNVMLError(ret))
	}

	return version, nil
}

func (b *NVML) Coolers() ([]Cooler, error) {
	errFactory := errors.New()
	if !b.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	indices := make([]int, 0, len(b.devices))
	for i := range b.devices {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var coolers []Cooler
	for _, i := range indices {
		count, ret := b.devices[i].GetNumFans()
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
		}
		logger.Debug().Msgf("GPU %d: %d fans", i, count)

		for fan := 0; fan < count; fan++ {
			coolers = append(coolers, Cooler{GPU: i, Fan: fan})
		}
	}

	if len(coolers) == 0 {
		return nil, errFactory.New(ErrNoDevices)
	}

	return coolers, nil
}

func (b *NVML) GetTemperature(gpu int) (int, error) {
	device, err := b.device(gpu)
	if err != nil {
		return 0, err
	}

	temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrTemperatureRead, newNVMLError(ret))
	}

	return int(temp), nil
}

func (b *NVML) GetControlMode(c Cooler) (Mode, error) {
	device, err := b.device(c.GPU)
	if err != nil {
		return ModeAutomatic, err
	}

	policy, ret := device.GetFanControlPolicy_v2(c.Fan)
	if !IsNVMLSuccess(ret) {
		return ModeAutomatic, errors.New().Wrap(ErrControlModeRead, newNVMLError(ret))
	}

	if policy == nvml.FAN_POLICY_MANUAL {
		return ModeManual, nil
	}

	return ModeAutomatic, nil
}

func (b *NVML) GetFanSpeed(c Cooler) (int, error) {
	device, err := b.device(c.GPU)
	if err != nil {
		return 0, err
	}

	speed, ret := device.GetFanSpeed_v2(c.Fan)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrFanSpeedRead, newNVMLError(ret))
	}

	return int(speed), nil
}

// GetFanSpeedRPM always fails: NVML exposes fan duty cycle but no tachometer
// reading. Callers treat the rpm as unknown.
func (b *NVML) GetFanSpeedRPM(Cooler) (int, error) {
	return 0, errors.New().New(ErrRPMUnsupported)
}

func (b *NVML) SetControlMode(c Cooler, m Mode) error {
	errFactory := errors.New()
	device, err := b.device(c.GPU)
	if err != nil {
		return err
	}

	if m == ModeManual {
		if ret := device.SetFanControlPolicy(c.Fan, nvml.FAN_POLICY_MANUAL); !IsNVMLSuccess(ret) {
			return errFactory.Wrap(ErrControlMode, newNVMLError(ret))
		}
		return nil
	}

	// Returning control to the firmware also restores its default policy.
	if ret := nvml.DeviceSetDefaultFanSpeed_v2(device, c.Fan); !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrControlMode, newNVMLError(ret))
	}

	return nil
}

func (b *NVML) SetFanSpeed(c Cooler, percent int) error {
	device, err := b.device(c.GPU)
	if err != nil {
		return err
	}

	if ret := nvml.DeviceSetFanSpeed_v2(device, c.Fan, percent); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrSetFanSpeed, newNVMLError(ret))
	}
	logger.Debug().Msgf("GPU %d fan %d: set speed %d%%", c.GPU, c.Fan, percent)

	return nil
}

func (b *NVML) device(gpu int) (nvml.Device, error) {
	errFactory := errors.New()
	if !b.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ok := b.devices[gpu]
	if !ok {
		return nil, errFactory.WithData(ErrDeviceNotFound, gpu)
	}

	return device, nil
}
