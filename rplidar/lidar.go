// Package rplidar provides a go api for the RPLIDAR A1 over a USB serial adapter.
// The lidar outputs bytes in little endian format.
package rplidar

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// NewLidar returns a Lidar object.
func NewLidar(port Port) *Lidar {
	return &Lidar{
		SerialPort: port,
	}
}

// sendCommand writes a request without payload.
func (lidar *Lidar) sendCommand(cmd byte) error {
	glog.V(2).Infof("Sending command %#x", cmd)
	if _, err := lidar.SerialPort.Write([]byte{syncByte, cmd}); err != nil {
		return fmt.Errorf("failed to send command %#x: %w", cmd, err)
	}
	return nil
}

// readFull fills buf from the serial port. A read that returns no bytes and no
// error means the port read timeout expired.
func (lidar *Lidar) readFull(buf []byte) error {
	for got := 0; got < len(buf); {
		n, err := lidar.SerialPort.Read(buf[got:])
		got += n
		if err != nil {
			return fmt.Errorf("failed to read serial: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("expected %d bytes got %d: %w", len(buf), got, ErrTimeout)
		}
	}
	return nil
}

// readDescriptor reads and validates the response descriptor.
func (lidar *Lidar) readDescriptor() (descriptor, error) {
	raw := make([]byte, descriptorLen)
	if err := lidar.readFull(raw); err != nil {
		return descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	glog.V(2).Infof("Response descriptor %s", hexBytes(raw))

	if raw[0] != syncByte || raw[1] != syncByte2 {
		return descriptor{}, fmt.Errorf("invalid start flag. Expected 0xA5 0x5A got %#x %#x: %w", raw[0], raw[1], ErrDescriptor)
	}

	// The low 30 bits hold the response length, the high 2 bits the send mode.
	sizeAndMode := binary.LittleEndian.Uint32(raw[2:6])
	return descriptor{
		Size:     sizeAndMode & 0x3FFFFFFF,
		Mode:     byte(sizeAndMode >> 30),
		DataType: raw[6],
	}, nil
}

// expectDescriptor reads the descriptor and checks it against the expected response.
func (lidar *Lidar) expectDescriptor(size uint32, mode byte, dataType byte) error {
	d, err := lidar.readDescriptor()
	if err != nil {
		return err
	}
	if d.DataType != dataType || d.Size != size || d.Mode != mode {
		return fmt.Errorf("expected size=%d mode=%d type=%#x got %v: %w", size, mode, dataType, d, ErrDescriptor)
	}
	return nil
}

// DeviceInfo returns the version information.
func (lidar *Lidar) DeviceInfo() (*DeviceInfo, error) {
	if err := lidar.sendCommand(infoCommand); err != nil {
		return nil, err
	}
	if err := lidar.expectDescriptor(infoLen, SingleResponse, InfoTypeCode); err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	data := make([]byte, infoLen)
	if err := lidar.readFull(data); err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}

	info := &DeviceInfo{
		Model:         data[0],
		FirmwareMinor: data[1],
		FirmwareMajor: data[2],
		Hardware:      data[3],
	}
	copy(info.Serial[:], data[4:20])
	return info, nil
}

// Health returns the lidar health. An error status is reported both in the
// returned Health and as an error wrapping ErrDeviceUnhealthy.
func (lidar *Lidar) Health() (*Health, error) {
	if err := lidar.sendCommand(healthCommand); err != nil {
		return nil, err
	}
	if err := lidar.expectDescriptor(healthLen, SingleResponse, HealthTypeCode); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}

	data := make([]byte, healthLen)
	if err := lidar.readFull(data); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}

	health := &Health{
		Status:    HealthStatus(data[0]),
		ErrorCode: binary.LittleEndian.Uint16(data[1:3]),
	}
	if health.Status == HealthError {
		return health, fmt.Errorf("error code %d: %w", health.ErrorCode, ErrDeviceUnhealthy)
	}
	return health, nil
}

// StartMotor spins up the motor. The A1 adapter drives the motor enable line
// from DTR, active low.
func (lidar *Lidar) StartMotor() error {
	glog.V(1).Info("Starting motor")
	return lidar.SerialPort.SetDTR(false)
}

// StopMotor stops the motor.
func (lidar *Lidar) StopMotor() error {
	glog.V(1).Info("Stopping motor")
	return lidar.SerialPort.SetDTR(true)
}

// StartScan requests a normal scan and validates the response descriptor.
// Measurements are then read with ReadMeasurement or a ScanReader.
func (lidar *Lidar) StartScan() error {
	if err := lidar.sendCommand(scanCommand); err != nil {
		return err
	}
	if err := lidar.expectDescriptor(measurementLen, ContinuousResponse, ScanTypeCode); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	glog.V(1).Info("Scan command response: GOOD")
	return nil
}

// StopScan stops the lidar scans and flushes the pending input.
func (lidar *Lidar) StopScan() error {
	if err := lidar.sendCommand(stopCommand); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return lidar.SerialPort.ResetInputBuffer()
}

// Close will shut down the connection.
func (lidar *Lidar) Close() error {
	return lidar.SerialPort.Close()
}

// Dropped returns the number of malformed measurement frames discarded so far.
func (lidar *Lidar) Dropped() int {
	return lidar.dropped
}

// ReadMeasurement reads the next measurement of a running scan. Malformed
// frames are discarded one byte at a time until the stream lines up again.
func (lidar *Lidar) ReadMeasurement() (Measurement, error) {
	var frame [measurementLen]byte
	if err := lidar.readFull(frame[:]); err != nil {
		return Measurement{}, err
	}
	for {
		if m, ok := decodeMeasurement(frame); ok {
			return m, nil
		}
		lidar.dropped++
		glog.V(2).Infof("Dropping malformed measurement %s", hexBytes(frame[:]))
		copy(frame[:], frame[1:])
		if err := lidar.readFull(frame[measurementLen-1:]); err != nil {
			return Measurement{}, err
		}
	}
}

// decodeMeasurement unpacks a 5 byte measurement frame.
//
//	byte 0: quality(6) | !S | S
//	byte 1: angle_q6[6:0] | C (always 1)
//	byte 2: angle_q6[14:7]
//	byte 3-4: distance_q2
func decodeMeasurement(raw [measurementLen]byte) (Measurement, bool) {
	newScan := raw[0]&0x1 == 1
	inverted := (raw[0]>>1)&0x1 == 1
	if newScan == inverted {
		return Measurement{}, false
	}
	if raw[1]&0x1 != 1 {
		return Measurement{}, false
	}

	angleQ6 := uint16(raw[1])>>1 | uint16(raw[2])<<7
	distanceQ2 := binary.LittleEndian.Uint16(raw[3:5])

	return Measurement{
		NewScan:  newScan,
		Quality:  int(raw[0] >> 2),
		Angle:    float64(angleQ6) / 64,
		Distance: float64(distanceQ2) / 4,
	}, true
}
