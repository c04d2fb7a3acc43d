package acquire

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/deepakkamesh/lidarview/rplidar"
	"github.com/deepakkamesh/lidarview/rplidar/mocks"
)

var errClosed = errors.New("port closed")

func feed(data []byte) func([]byte) (int, error) {
	r := bytes.NewReader(data)
	return func(p []byte) (int, error) {
		n, _ := r.Read(p)
		return n, nil
	}
}

func measurement(newScan bool, angle, dist float64) []byte {
	b0 := byte(15 << 2)
	if newScan {
		b0 |= 0x1
	} else {
		b0 |= 0x2
	}
	q6 := uint16(angle * 64)
	q2 := uint16(dist * 4)
	return []byte{b0, byte(q6<<1) | 0x1, byte(q6 >> 7), byte(q2), byte(q2 >> 8)}
}

func TestReleaseRunsOnce(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	gomock.InOrder(
		port.EXPECT().Write([]byte{0xA5, 0x25}).Return(2, nil).Times(1),
		port.EXPECT().ResetInputBuffer().Return(nil).Times(1),
		port.EXPECT().SetDTR(true).Return(nil).Times(1),
		port.EXPECT().Close().Return(nil).Times(1),
	)

	d := NewDevice("/dev/ttyUSB0", port)
	d.Release()
	d.Release()
}

func TestReleaseAlreadyDisconnected(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	port.EXPECT().Write(gomock.Any()).Return(0, errClosed).Times(1)
	port.EXPECT().SetDTR(true).Return(errClosed).Times(1)
	port.EXPECT().Close().Return(errClosed).Times(1)

	d := NewDevice("/dev/ttyUSB0", port)
	assert.NotPanics(t, d.Release)
	assert.NotPanics(t, d.Release)
}

func TestScans(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x05, 0, 0, 0x40, 0x81}
	stream = append(stream, measurement(true, 0, 1000)...)
	for i := 1; i <= 6; i++ {
		stream = append(stream, measurement(false, float64(i*10), 1000+float64(i))...)
	}
	stream = append(stream, measurement(true, 0, 1000)...)

	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	gomock.InOrder(
		port.EXPECT().SetDTR(false).Return(nil),
		port.EXPECT().Write([]byte{0xA5, 0x20}).Return(2, nil),
	)
	port.EXPECT().Read(gomock.Any()).DoAndReturn(feed(stream)).AnyTimes()

	scans, err := NewDevice("test", port).Scans(context.Background())
	require.NoError(t, err)

	var src ScanSource = scans
	scan, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, scan, 7)
	assert.Equal(t, 15, scan[0].Quality)
	assert.InDelta(t, 0.0, scan[0].AngleDeg, 1e-9)
	assert.InDelta(t, 1000.0, scan[0].DistanceMM, 1e-9)
	assert.InDelta(t, 60.0, scan[6].AngleDeg, 1e-9)
	assert.InDelta(t, 1006.0, scan[6].DistanceMM, 1e-9)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, rplidar.ErrTimeout)
}

func TestScansMotorFailure(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	port.EXPECT().SetDTR(false).Return(errClosed)

	_, err := NewDevice("test", port).Scans(context.Background())
	assert.ErrorIs(t, err, errClosed)
}

func TestOpen(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	port.EXPECT().SetReadTimeout(3 * time.Second).Return(nil)

	var gotPath string
	var gotMode *serial.Mode
	restore := openPort
	t.Cleanup(func() { openPort = restore })
	openPort = func(path string, mode *serial.Mode) (rplidar.Port, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	d, err := Open(DeviceConfig{Path: "/dev/ttyUSB0", BaudRate: 115200, ReadTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", d.Path)
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)
	assert.Equal(t, 8, gotMode.DataBits)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
}

func TestOpenFailure(t *testing.T) {
	restore := openPort
	t.Cleanup(func() { openPort = restore })
	openPort = func(string, *serial.Mode) (rplidar.Port, error) {
		return nil, errors.New("no such file or directory")
	}

	_, err := Open(DeviceConfig{Path: "/dev/ttyUSB9", BaudRate: 115200})
	assert.EqualError(t, err, "open /dev/ttyUSB9: no such file or directory")
}

func TestResolvePort(t *testing.T) {
	restore := listPorts
	t.Cleanup(func() { listPorts = restore })

	listPorts = func() ([]string, error) { return []string{"/dev/ttyS0", "/dev/ttyUSB0"}, nil }
	path, err := ResolvePort(AutoPort)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", path)

	path, err = ResolvePort("/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", path)

	listPorts = func() ([]string, error) { return nil, nil }
	_, err = ResolvePort(AutoPort)
	assert.EqualError(t, err, "no serial ports found")
}

func TestPrintStatusSwallowsErrors(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	port.EXPECT().Write(gomock.Any()).Return(0, errClosed).Times(2)

	d := NewDevice("test", port)
	assert.NotPanics(t, func() { d.PrintStatus(context.Background()) })
}

func TestStartupInterrupted(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	port := mocks.NewMockPort(mockCtrl)
	// Only the release sequence may touch the port.
	gomock.InOrder(
		port.EXPECT().Write([]byte{0xA5, 0x25}).Return(2, nil).Times(1),
		port.EXPECT().ResetInputBuffer().Return(nil).Times(1),
		port.EXPECT().SetDTR(true).Return(nil).Times(1),
		port.EXPECT().Close().Return(nil).Times(1),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDevice("test", port)
	d.PrintStatus(ctx)
	_, err := d.Scans(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	d.Release()
}
