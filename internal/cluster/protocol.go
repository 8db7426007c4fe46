package cluster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"

	"github.com/near/borsh-go"
)

const (
	// HeaderSize is the size of the big-endian length prefix of every frame.
	HeaderSize = 4

	// DefaultMaxFrameSize bounds the payload length accepted by ReadFrame.
	DefaultMaxFrameSize = 1 << 30

	countSize = 4
	valueSize = 8
)

var (
	// ErrEndOfStream is returned when the peer closes the connection before
	// a complete frame has been read.
	ErrEndOfStream = errors.New("connection closed before full message received")

	// ErrFrameTooLarge is returned when a length prefix exceeds the maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrPayloadDecode is returned when a payload is not a valid value sequence.
	ErrPayloadDecode = errors.New("payload decode failed")

	// ErrNaN is returned when a value sequence contains NaN, which the
	// payload encoding cannot carry.
	ErrNaN = errors.New("NaN is not allowed in a chunk")
)

// TimeoutFunc is consulted when a read hits a timeout. Returning true keeps
// reading (the callee is expected to re-arm any deadline); false aborts the
// read with the timeout error.
type TimeoutFunc func(err error) bool

// chunkPayload is the borsh shape of a frame payload.
type chunkPayload struct {
	Values []float64
}

// EncodeChunk serializes values into a frame payload. values must not
// contain NaN.
func EncodeChunk(values []float64) ([]byte, error) {
	if values == nil {
		values = []float64{}
	}
	if i := IndexNaN(values); i >= 0 {
		return nil, fmt.Errorf("encode chunk: %w (index %d)", ErrNaN, i)
	}
	data, err := borsh.Serialize(chunkPayload{Values: values})
	if err != nil {
		return nil, fmt.Errorf("encode chunk: %w", err)
	}
	return data, nil
}

// DecodeChunk parses a frame payload produced by EncodeChunk. The payload
// length must match the encoded element count exactly.
func DecodeChunk(payload []byte) ([]float64, error) {
	if len(payload) < countSize {
		return nil, fmt.Errorf("%w: payload of %d bytes has no count", ErrPayloadDecode, len(payload))
	}
	count := binary.LittleEndian.Uint32(payload[:countSize])
	want := uint64(countSize) + uint64(count)*valueSize
	if uint64(len(payload)) != want {
		return nil, fmt.Errorf("%w: %d values need %d bytes, got %d",
			ErrPayloadDecode, count, want, len(payload))
	}

	var p chunkPayload
	if err := borsh.Deserialize(&p, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadDecode, err)
	}
	if p.Values == nil {
		return []float64{}, nil
	}
	return p.Values, nil
}

// WriteFrame writes the length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame and returns its payload. maxSize <= 0 means
// DefaultMaxFrameSize. onTimeout may be nil, in which case timeouts abort.
func ReadFrame(r io.Reader, maxSize int, onTimeout TimeoutFunc) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	var header [HeaderSize]byte
	if err := ReadFull(r, header[:], onTimeout); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}
	payload := make([]byte, length)
	if err := ReadFull(r, payload, onTimeout); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadFull fills buf from r. A read returning no data together with EOF
// yields ErrEndOfStream; timeouts are passed to onTimeout.
func ReadFull(r io.Reader, buf []byte, onTimeout TimeoutFunc) error {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if read == len(buf) {
				return nil
			}
			return fmt.Errorf("%w: got %d of %d bytes", ErrEndOfStream, read, len(buf))
		}
		if isTimeout(err) && onTimeout != nil && onTimeout(err) {
			continue
		}
		return err
	}
	return nil
}

// SendChunk encodes values and writes them as one frame.
func SendChunk(w io.Writer, values []float64) error {
	payload, err := EncodeChunk(values)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReceiveChunk reads one frame and decodes it into a value sequence.
func ReceiveChunk(r io.Reader, maxSize int, onTimeout TimeoutFunc) ([]float64, error) {
	payload, err := ReadFrame(r, maxSize, onTimeout)
	if err != nil {
		return nil, err
	}
	return DecodeChunk(payload)
}

// IndexNaN returns the index of the first NaN in values, or -1.
func IndexNaN(values []float64) int {
	for i, v := range values {
		if math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// IsFramingError reports whether err is a protocol framing error.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrPayloadDecode)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
