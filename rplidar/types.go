package rplidar

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

//go:generate mockgen -destination=mocks/mock_port.go -package=mocks github.com/deepakkamesh/lidarview/rplidar Port

// Port is the subset of a serial port the driver needs. go.bug.st/serial's
// serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Lidar is the lidar object.
type Lidar struct {
	SerialPort Port

	// dropped counts measurement frames discarded while resynchronizing.
	dropped int
}

const (
	// syncByte precedes every request and every response descriptor.
	syncByte = 0xA5

	// syncByte2 is the second byte of a response descriptor.
	syncByte2 = 0x5A

	// stopCommand exits the current scan state. The device needs 1ms before
	// it accepts another request.
	stopCommand = 0x25

	// scanCommand starts a normal scan.
	scanCommand = 0x20

	// infoCommand requests the device information.
	infoCommand = 0x50

	// healthCommand requests the health status.
	healthCommand = 0x52

	// InfoTypeCode is the data type of a device information response.
	InfoTypeCode = 0x04

	// HealthTypeCode is the data type of a health response.
	HealthTypeCode = 0x06

	// ScanTypeCode is the data type of a scan response.
	ScanTypeCode = 0x81

	descriptorLen  = 7
	infoLen        = 20
	healthLen      = 3
	measurementLen = 5

	// SingleResponse and ContinuousResponse are the descriptor send modes.
	SingleResponse     = 0x0
	ContinuousResponse = 0x1

	// MinScanLen is the number of samples a scan must exceed to be emitted.
	MinScanLen = 5
)

var (
	// ErrTimeout is returned when the port delivers no bytes within its read timeout.
	ErrTimeout = errors.New("rplidar: read timeout")

	// ErrDescriptor is returned for a response descriptor that does not match the request.
	ErrDescriptor = errors.New("rplidar: unexpected response descriptor")

	// ErrDeviceUnhealthy is returned when the device reports an error health status.
	ErrDeviceUnhealthy = errors.New("rplidar: device reports error status")
)

// DeviceInfo contains the device model, firmware, hardware, and serial number.
type DeviceInfo struct {
	Model         byte     // Model number.
	FirmwareMinor byte     // Firmware version, minor part.
	FirmwareMajor byte     // Firmware version, major part.
	Hardware      byte     // Hardware version.
	Serial        [16]byte // Serial number.
}

// Firmware returns the firmware version as major.minor.
func (d DeviceInfo) Firmware() string {
	return fmt.Sprintf("%d.%d", d.FirmwareMajor, d.FirmwareMinor)
}

// SerialNumber returns the serial number as upper-case hex.
func (d DeviceInfo) SerialNumber() string {
	return fmt.Sprintf("%X", d.Serial[:])
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("Model: %d Hardware Version: %d Firmware Version: %s Serial Number: %s",
		d.Model, d.Hardware, d.Firmware(), d.SerialNumber())
}

// HealthStatus is the status byte of a health response.
type HealthStatus byte

const (
	HealthGood    HealthStatus = 0
	HealthWarning HealthStatus = 1
	HealthError   HealthStatus = 2
)

func (s HealthStatus) String() string {
	switch s {
	case HealthGood:
		return "Good"
	case HealthWarning:
		return "Warning"
	case HealthError:
		return "Error"
	}
	return fmt.Sprintf("Unknown(%d)", byte(s))
}

// Health is the decoded health response.
type Health struct {
	Status    HealthStatus
	ErrorCode uint16
}

func (h Health) String() string {
	return fmt.Sprintf("Status: %v Error Code: %d", h.Status, h.ErrorCode)
}

// Measurement is a single decoded scan sample.
type Measurement struct {
	NewScan  bool    // Set on the first sample of a revolution.
	Quality  int     // Reflected signal strength, 0-63.
	Angle    float64 // Degrees.
	Distance float64 // Millimeters, 0 when the sample is invalid.
}

// descriptor is the response descriptor sent ahead of every response.
type descriptor struct {
	Size     uint32 // 30 bits.
	Mode     byte   // 2 bits.
	DataType byte
}

func (d descriptor) String() string {
	return fmt.Sprintf("size=%d mode=%d type=%#x", d.Size, d.Mode, d.DataType)
}

// hexBytes is used in verbose protocol traces.
func hexBytes(b []byte) string {
	return hex.EncodeToString(b)
}
