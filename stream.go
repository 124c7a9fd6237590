package ringchan

import (
	"io"

	"github.com/hashicorp/go-multierror"
)

// DefaultCopyBufferSize is the buffer size Copy uses when given bufSize <= 0.
const DefaultCopyBufferSize = 512

const defaultCopySize = 32 * 1024

// Copy copies src to dst until EOF using a buffer of bufSize bytes. It does
// not consult io.WriterTo or io.ReaderFrom, so the buffer size is honoured.
func Copy(dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultCopyBufferSize
	}
	return copyBuffered(src.Read, dst.Write, bufSize)
}

// CloseAll closes every non-nil closer and returns their combined errors.
func CloseAll(closers ...io.Closer) error {
	var result *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func copyBuffered(read func([]byte) (int, error), write func([]byte) (int, error), size int) (int64, error) {
	buf := make([]byte, size)
	var total int64
	for {
		n, rErr := read(buf)
		if n > 0 {
			wn, wErr := write(buf[:n])
			if wn < 0 || wn > n {
				wn = 0
				if wErr == nil {
					wErr = io.ErrShortWrite
				}
			}
			total += int64(wn)
			if wErr != nil {
				return total, wErr
			}
			if wn != n {
				return total, io.ErrShortWrite
			}
		}
		if rErr != nil {
			if rErr != io.EOF {
				return total, rErr
			}
			return total, nil
		}
	}
}
