package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// MalgoCapturer captures mono float32 batches from a device through malgo
type MalgoCapturer struct {
	config CaptureConfig

	mu       sync.RWMutex
	running  bool
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	selected *DeviceInfo

	samples   chan SampleBatch
	errors    chan error
	stopChan  chan struct{}
	wg        sync.WaitGroup
	overflows atomic.Uint64
}

// NewMalgoCapturer creates a capturer for config. The device is opened by
// Start.
func NewMalgoCapturer(config CaptureConfig) (*MalgoCapturer, error) {
	if config.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be positive")
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.SampleBufferSize <= 0 {
		config.SampleBufferSize = DefaultConfig().SampleBufferSize
	}

	return &MalgoCapturer{
		config:   config,
		samples:  make(chan SampleBatch, config.SampleBufferSize),
		errors:   make(chan error, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Start opens the device and begins delivering batches. Cancelling ctx
// stops the capture.
func (m *MalgoCapturer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("capturer is already running")
	}

	if err := m.open(); err != nil {
		m.release()
		return err
	}
	m.running = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			go m.Stop()
		case <-m.stopChan:
		}
	}()

	return nil
}

// open initializes the context and device; the caller holds mu and
// releases on error
func (m *MalgoCapturer) open() error {
	var err error
	m.ctx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferFrames

	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := toDeviceInfos(infos)
	if m.config.DeviceID != "" {
		selected, err := SelectDevice(devices, m.config.DeviceID)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = selected.native.Pointer()
		m.selected = selected
	} else if def, err := SelectDevice(devices, ""); err == nil {
		m.selected = def
	}

	callbacks := malgo.DeviceCallbacks{Data: m.onData}
	m.device, err = malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// onData runs on the device thread
func (m *MalgoCapturer) onData(_, input []byte, frames uint32) {
	// DecodeFloat32 copies, so the device buffer is never retained
	samples := DecodeFloat32(input, int(m.config.Channels))
	if int(frames) != len(samples) {
		m.reportError(fmt.Errorf("device delivered %d bytes for %d frames", len(input), frames))
	}

	batch := SampleBatch{
		Samples:   samples,
		Timestamp: time.Now(),
		Frames:    uint32(len(samples)),
	}
	select {
	case m.samples <- batch:
	default:
		m.overflows.Add(1)
		m.reportError(fmt.Errorf("sample buffer overflow after %s of headroom, dropping %d frames",
			m.config.Headroom().Round(time.Millisecond), frames))
	}
}

// release tears down whatever open managed to create; the caller holds mu
func (m *MalgoCapturer) release() error {
	var err error
	if m.device != nil {
		if serr := m.device.Stop(); serr != nil {
			err = fmt.Errorf("failed to stop device: %w", serr)
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		err = errors.Join(err, m.ctx.Uninit())
		m.ctx.Free()
		m.ctx = nil
	}
	return err
}

// Stop stops the device and closes the sample and error channels
func (m *MalgoCapturer) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopChan)
	err := m.release()
	m.mu.Unlock()

	m.wg.Wait()

	// No callback can run once the device is uninitialized
	close(m.samples)
	close(m.errors)

	return err
}

// Samples returns a channel that receives sample batches
func (m *MalgoCapturer) Samples() <-chan SampleBatch {
	return m.samples
}

// Errors returns a channel that receives capture errors
func (m *MalgoCapturer) Errors() <-chan error {
	return m.errors
}

// IsRunning returns true if capture is currently active
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Device returns the device being captured, when it could be identified
func (m *MalgoCapturer) Device() (DeviceInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.selected == nil {
		return DeviceInfo{}, false
	}
	return *m.selected, true
}

// Overflows returns how many batches were dropped because the consumer fell
// behind
func (m *MalgoCapturer) Overflows() uint64 {
	return m.overflows.Load()
}

func (m *MalgoCapturer) reportError(err error) {
	select {
	case m.errors <- err:
	default:
	}
}
