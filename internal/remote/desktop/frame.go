package desktop

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame formats carried in the binary frame header.
const (
	FormatJPEG = 1
)

// frameMagic prefixes every binary frame on the wire.
var frameMagic = [4]byte{'O', 'F', 'R', 'A'}

// FrameHeaderSize is the fixed length of the binary frame header:
// 4-byte magic plus three little-endian int32 fields.
const FrameHeaderSize = 16

// Frame is one captured desktop image ready for fan-out. Payload holds the
// encoded pixels (JPEG for FormatJPEG); Seq increases by one for every frame
// the engine publishes. Timestamp records when the pixels were captured; it
// is carried in-process only, the wire header does not include it.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    int
	Payload   []byte
}

// MarshalBinary renders the frame as wire bytes: magic, width, height,
// format, then the payload.
func (f *Frame) MarshalBinary() []byte {
	buf := make([]byte, FrameHeaderSize+len(f.Payload))
	copy(buf[0:4], frameMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(f.Width)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(f.Height)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(f.Format)))
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// ParseFrameHeader reads the fixed header from wire bytes and returns the
// dimensions, format, and payload slice. The payload aliases data.
func ParseFrameHeader(data []byte) (width, height, format int, payload []byte, err error) {
	if len(data) < FrameHeaderSize {
		return 0, 0, 0, nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if [4]byte(data[0:4]) != frameMagic {
		return 0, 0, 0, nil, fmt.Errorf("bad frame magic %q", data[0:4])
	}
	width = int(int32(binary.LittleEndian.Uint32(data[4:8])))
	height = int(int32(binary.LittleEndian.Uint32(data[8:12])))
	format = int(int32(binary.LittleEndian.Uint32(data[12:16])))
	return width, height, format, data[FrameHeaderSize:], nil
}
