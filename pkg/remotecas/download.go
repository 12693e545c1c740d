package remotecas

import (
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// firstByteReader wraps a remote body reader, mirroring every read into
// dest (so the same pass both writes the file and feeds the verifying
// hasher) and firing onFirstByte once, the moment bytes first arrive —
// used to report time-to-first-byte for PlaceFile.
type firstByteReader struct {
	r           io.Reader
	mirror      io.Writer
	onFirstByte func()
	fired       bool
}

func (f *firstByteReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if n > 0 {
		if !f.fired {
			f.fired = true
			f.onFirstByte()
		}
		if _, werr := f.mirror.Write(p[:n]); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func attrDuration(key string, d time.Duration) attribute.KeyValue {
	return attribute.Float64(key, float64(d.Microseconds())/1000.0)
}
