package app

import (
	"fmt"
	"io"
	"os"

	"github.com/emmett/chime/internal/audio"
)

// DeviceManager handles audio device selection and listing
type DeviceManager struct {
	out  io.Writer
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a new DeviceManager writing to out (stdout if nil)
func NewDeviceManager(out io.Writer) *DeviceManager {
	if out == nil {
		out = os.Stdout
	}
	return &DeviceManager{out: out, list: audio.ListDevices}
}

// ListDevices lists all available audio input devices
func (dm *DeviceManager) ListDevices() error {
	fmt.Fprintln(dm.out, "Detecting audio input devices...")
	fmt.Fprintln(dm.out)

	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(dm.out, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(dm.out, "Found %d capture device(s):\n\n", len(devices))

	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(dm.out, "%d. %s%s\n", i+1, device.Name, marker)
		fmt.Fprintf(dm.out, "   ID: %s\n", device.ID)
	}

	fmt.Fprintln(dm.out)
	fmt.Fprintln(dm.out, "To use a specific device, run:")
	fmt.Fprintf(dm.out, "  chime listen --device %q\n", devices[0].Name)

	return nil
}

// SelectDevice selects an audio device by name/ID, or returns the default
func (dm *DeviceManager) SelectDevice(deviceName string) (*audio.DeviceInfo, error) {
	devices, err := dm.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	selected, err := audio.SelectDevice(devices, deviceName)
	if err != nil {
		fmt.Fprintf(dm.out, "Device %q not found. Available devices:\n", deviceName)
		for i, device := range devices {
			fmt.Fprintf(dm.out, "  %d. %s\n", i+1, device.String())
		}
		fmt.Fprintln(dm.out, "Use 'chime devices' for more details")
		return nil, fmt.Errorf("invalid audio device specified: %w", err)
	}

	return selected, nil
}
