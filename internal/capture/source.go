package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrCaptureUnavailable reports that the capture device cannot be acquired.
// The segmenter fails fast on it; it never substitutes silent frames for a
// missing device.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Source is the capture device capability. It is acquired for the lifetime
// of one session and must be released with Close on every exit path.
// Blocks delivers fixed-size PCM blocks; the channel closes when the device
// stops (end of input or Close).
type Source interface {
	Blocks() <-chan []byte
	Close() error
}

// FileSource streams raw 16-bit LE mono PCM from a file in fixed-size
// blocks, pacing at real time. Real capture devices are platform
// collaborators behind the same interface.
type FileSource struct {
	f      *os.File
	blocks chan []byte
	done   chan struct{}
}

// OpenFile acquires a file-backed source emitting blockBytes per block
// every blockDur. It fails fast with ErrCaptureUnavailable when the file
// cannot be opened.
func OpenFile(path string, blockBytes int, blockDur time.Duration) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	s := &FileSource{
		f:      f,
		blocks: make(chan []byte, 4),
		done:   make(chan struct{}),
	}
	go s.pump(blockBytes, blockDur)
	return s, nil
}

func (s *FileSource) pump(blockBytes int, blockDur time.Duration) {
	defer close(s.blocks)
	ticker := time.NewTicker(blockDur)
	defer ticker.Stop()
	for {
		buf := make([]byte, blockBytes)
		n, err := io.ReadFull(s.f, buf)
		if n == 0 || (err != nil && err != io.ErrUnexpectedEOF) {
			return
		}
		select {
		case s.blocks <- buf[:n]:
		case <-s.done:
			return
		}
		if err == io.ErrUnexpectedEOF {
			return
		}
		select {
		case <-ticker.C:
		case <-s.done:
			return
		}
	}
}

func (s *FileSource) Blocks() <-chan []byte { return s.blocks }

func (s *FileSource) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.f.Close()
}
