package rplidar

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/deepakkamesh/lidarview/rplidar/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feed returns a Read implementation that serves data and then behaves like
// an expired read timeout.
func feed(data []byte) func([]byte) (int, error) {
	r := bytes.NewReader(data)
	return func(p []byte) (int, error) {
		n, _ := r.Read(p)
		return n, nil
	}
}

// encode packs a measurement frame the way the sensor sends it.
func encode(newScan bool, quality int, angle, dist float64) []byte {
	b0 := byte(quality << 2)
	if newScan {
		b0 |= 0x1
	} else {
		b0 |= 0x2
	}
	q6 := uint16(angle * 64)
	q2 := uint16(dist * 4)
	return []byte{b0, byte(q6<<1) | 0x1, byte(q6 >> 7), byte(q2), byte(q2 >> 8)}
}

func newMockLidar(t *testing.T, stream []byte) (*Lidar, *mocks.MockPort) {
	mockCtrl := gomock.NewController(t)
	mockSerial := mocks.NewMockPort(mockCtrl)
	mockSerial.EXPECT().Read(gomock.Any()).DoAndReturn(feed(stream)).AnyTimes()
	return NewLidar(mockSerial), mockSerial
}

func TestDeviceInfo(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x14, 0, 0, 0, 0x04}
	stream = append(stream, 0x18, 0x1D, 0x01, 0x07)
	stream = append(stream, 0xDE, 0xAD, 0xBE, 0xEF, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
	lidar, mockSerial := newMockLidar(t, stream)
	mockSerial.EXPECT().Write([]byte{syncByte, infoCommand}).Return(2, nil).Times(1)

	info, err := lidar.DeviceInfo()
	require.NoError(t, err)
	assert.Equal(t, byte(0x18), info.Model)
	assert.Equal(t, "1.29", info.Firmware())
	assert.Equal(t, byte(7), info.Hardware)
	assert.Equal(t, "DEADBEEF000102030405060708090A0B", info.SerialNumber())
}

func TestDeviceInfoShortBody(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x14, 0, 0, 0, 0x04, 0x18, 0x1D}
	lidar, mockSerial := newMockLidar(t, stream)
	mockSerial.EXPECT().Write(gomock.Any()).Return(2, nil).Times(1)

	_, err := lidar.DeviceInfo()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHealth(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x03, 0, 0, 0, 0x06, 0, 0, 0}
	lidar, mockSerial := newMockLidar(t, stream)
	mockSerial.EXPECT().Write([]byte{syncByte, healthCommand}).Return(2, nil).Times(1)

	health, err := lidar.Health()
	require.NoError(t, err)
	assert.Equal(t, HealthGood, health.Status)
	assert.Equal(t, "Good", health.Status.String())
}

func TestHealthError(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x03, 0, 0, 0, 0x06, 0x02, 0x34, 0x12}
	lidar, mockSerial := newMockLidar(t, stream)
	mockSerial.EXPECT().Write(gomock.Any()).Return(2, nil).Times(1)

	health, err := lidar.Health()
	assert.ErrorIs(t, err, ErrDeviceUnhealthy)
	require.NotNil(t, health)
	assert.Equal(t, HealthError, health.Status)
	assert.Equal(t, uint16(0x1234), health.ErrorCode)
}

func TestDescriptorMismatch(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
	}{
		{"bad start flag", []byte{0xA5, 0x00, 0x03, 0, 0, 0, 0x06}},
		{"wrong type", []byte{0xA5, 0x5A, 0x03, 0, 0, 0, 0x04}},
		{"wrong size", []byte{0xA5, 0x5A, 0x04, 0, 0, 0, 0x06}},
		{"wrong mode", []byte{0xA5, 0x5A, 0x03, 0, 0, 0x40, 0x06}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lidar, mockSerial := newMockLidar(t, tt.stream)
			mockSerial.EXPECT().Write(gomock.Any()).Return(2, nil).Times(1)

			_, err := lidar.Health()
			assert.ErrorIs(t, err, ErrDescriptor)
		})
	}
}

func TestSendCommandFailure(t *testing.T) {
	lidar, mockSerial := newMockLidar(t, nil)
	mockSerial.EXPECT().Write(gomock.Any()).Return(0, errors.New("port closed")).Times(1)

	_, err := lidar.DeviceInfo()
	assert.EqualError(t, err, "failed to send command 0x50: port closed")
}

func TestStartScan(t *testing.T) {
	stream := []byte{0xA5, 0x5A, 0x05, 0, 0, 0x40, 0x81}
	lidar, mockSerial := newMockLidar(t, stream)
	mockSerial.EXPECT().Write([]byte{syncByte, scanCommand}).Return(2, nil).Times(1)

	assert.NoError(t, lidar.StartScan())
}

func TestStopScan(t *testing.T) {
	lidar, mockSerial := newMockLidar(t, nil)
	gomock.InOrder(
		mockSerial.EXPECT().Write([]byte{syncByte, stopCommand}).Return(2, nil),
		mockSerial.EXPECT().ResetInputBuffer().Return(nil),
	)

	assert.NoError(t, lidar.StopScan())
}

func TestMotor(t *testing.T) {
	lidar, mockSerial := newMockLidar(t, nil)
	gomock.InOrder(
		mockSerial.EXPECT().SetDTR(false).Return(nil),
		mockSerial.EXPECT().SetDTR(true).Return(nil),
	)

	assert.NoError(t, lidar.StartMotor())
	assert.NoError(t, lidar.StopMotor())
}

func TestDecodeMeasurement(t *testing.T) {
	// quality 15, start of scan, 90 degrees, 1000mm.
	raw := [measurementLen]byte{61, 0x01, 45, 0xA0, 0x0F}

	m, ok := decodeMeasurement(raw)
	require.True(t, ok)
	assert.True(t, m.NewScan)
	assert.Equal(t, 15, m.Quality)
	assert.InDelta(t, 90.0, m.Angle, 1e-9)
	assert.InDelta(t, 1000.0, m.Distance, 1e-9)
}

func TestDecodeMeasurementInvalid(t *testing.T) {
	_, ok := decodeMeasurement([measurementLen]byte{0x03, 0x01, 0, 0, 0})
	assert.False(t, ok, "start flag and its inverse both set")

	_, ok = decodeMeasurement([measurementLen]byte{0x00, 0x01, 0, 0, 0})
	assert.False(t, ok, "start flag and its inverse both clear")

	_, ok = decodeMeasurement([measurementLen]byte{0x02, 0x00, 0, 0, 0})
	assert.False(t, ok, "check bit clear")
}

func TestReadMeasurementResync(t *testing.T) {
	stream := append([]byte{0x00}, encode(false, 10, 123.5, 2500.25)...)
	lidar, _ := newMockLidar(t, stream)

	m, err := lidar.ReadMeasurement()
	require.NoError(t, err)
	assert.False(t, m.NewScan)
	assert.Equal(t, 10, m.Quality)
	assert.InDelta(t, 123.5, m.Angle, 1.0/64)
	assert.InDelta(t, 2500.25, m.Distance, 1e-9)
	assert.Equal(t, 1, lidar.Dropped())
}

func TestScanReader(t *testing.T) {
	var stream []byte
	// First revolution: six samples with distance, one without.
	stream = append(stream, encode(true, 15, 0, 500)...)
	stream = append(stream, encode(false, 15, 10, 600)...)
	stream = append(stream, encode(false, 15, 20, 700)...)
	stream = append(stream, encode(false, 0, 30, 0)...)
	stream = append(stream, encode(false, 15, 40, 800)...)
	stream = append(stream, encode(false, 15, 50, 900)...)
	stream = append(stream, encode(false, 15, 60, 1000)...)
	// Second revolution is too short to be emitted.
	stream = append(stream, encode(true, 15, 0, 500)...)
	stream = append(stream, encode(false, 15, 10, 600)...)
	stream = append(stream, encode(true, 15, 0, 500)...)

	lidar, _ := newMockLidar(t, stream)
	reader := NewScanReader(lidar, MinScanLen)

	scan, err := reader.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, scan, 6)
	assert.True(t, scan[0].NewScan)
	assert.InDelta(t, 0.0, scan[0].Angle, 1e-9)
	assert.InDelta(t, 60.0, scan[5].Angle, 1e-9)
	assert.Equal(t, 1, reader.Scans())

	_, err = reader.Next(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, reader.Scans())
}

func TestScanReaderCancelled(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	mockSerial := mocks.NewMockPort(mockCtrl)
	reader := NewScanReader(NewLidar(mockSerial), MinScanLen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
