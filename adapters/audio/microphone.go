package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

const (
	// SampleRate matches the pcm_16000 format the agent expects
	SampleRate = 16000
	Channels   = 1

	capturePeriodMillis = 100
)

// MicrophoneCapture reads 16 kHz mono s16le frames from the default input device.
type MicrophoneCapture struct {
	context *malgo.AllocatedContext
	logger  *zap.Logger

	mu     sync.Mutex
	device *malgo.Device
}

// NewMicrophoneCapture initializes the audio backend. Close releases it.
func NewMicrophoneCapture(logger *zap.Logger) (*MicrophoneCapture, error) {
	config := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, config, func(message string) {
		logger.Debug("malgo", zap.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}
	return &MicrophoneCapture{context: ctx, logger: logger}, nil
}

// Start opens the device and delivers each period to onFrame.
func (m *MicrophoneCapture) Start(onFrame func(frame []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.context == nil {
		return errors.New("microphone is closed")
	}
	if m.device != nil {
		return errors.New("microphone already started")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMillis

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			// malgo reuses the input buffer
			onFrame(append([]byte(nil), input...))
		},
	}

	device, err := malgo.InitDevice(m.context.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start microphone: %w", err)
	}

	m.device = device
	m.logger.Info("Microphone started", zap.Int("sampleRate", SampleRate))
	return nil
}

// Stop releases the device. Calling it while stopped is a no-op.
func (m *MicrophoneCapture) Stop() error {
	m.mu.Lock()
	device := m.device
	m.device = nil
	m.mu.Unlock()

	if device == nil {
		return nil
	}

	err := device.Stop()
	device.Uninit()
	m.logger.Info("Microphone stopped")
	return err
}

// Close stops capture and tears down the audio backend.
func (m *MicrophoneCapture) Close() error {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.context == nil {
		return nil
	}
	err := m.context.Uninit()
	m.context.Free()
	m.context = nil
	return err
}
