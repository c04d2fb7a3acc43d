package rplidar

import (
	"context"

	"github.com/golang/glog"
)

// ScanReader groups measurements into revolutions. It is a lazy, infinite
// sequence; once it returns an error other than ErrTimeout it should be discarded.
type ScanReader struct {
	lidar   *Lidar
	minLen  int
	current []Measurement
	scans   int
}

// NewScanReader returns a reader over a lidar that is already scanning. Scans
// with minLen or fewer samples are discarded.
func NewScanReader(lidar *Lidar, minLen int) *ScanReader {
	return &ScanReader{
		lidar:  lidar,
		minLen: minLen,
	}
}

// Next blocks until a complete revolution is available and returns its
// samples in arrival order. Zero distance samples are left out.
func (r *ScanReader) Next(ctx context.Context) ([]Measurement, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m, err := r.lidar.ReadMeasurement()
		if err != nil {
			return nil, err
		}

		var done []Measurement
		if m.NewScan {
			done, r.current = r.current, nil
		}
		if m.Distance > 0 {
			r.current = append(r.current, m)
		}

		if m.NewScan {
			if len(done) > r.minLen {
				r.scans++
				glog.V(2).Infof("Scan %d complete with %d samples", r.scans, len(done))
				return done, nil
			}
			glog.V(2).Infof("Discarding short scan of %d samples", len(done))
		}
	}
}

// Scans returns the number of scans returned so far.
func (r *ScanReader) Scans() int {
	return r.scans
}
