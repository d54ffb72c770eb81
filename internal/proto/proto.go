// Package proto defines the wire protocol spoken across a
// internal/hostkernel.Port: the command codes a driver dispatches on,
// and the request/reply structs those commands carry.
//
// It is the Go analogue of the microkernel's message-passing ABI
// (createmsgport/getmsg), which is out of scope to reimplement
// directly (spec.md §1, §6.1) — this package defines the messages
// that travel over whatever Port implementation is in use instead.
// Marshal/Unmarshal are adapted from the teacher's
// internal/uapi/marshal.go reflection-based packer, retargeted at
// these request/reply structs instead of ublk ioctl structs.
package proto

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Cmd identifies the operation a message carries.
type Cmd uint32

const (
	CmdRead Cmd = iota + 1
	CmdWrite
	CmdIsatty
	CmdTCGetAttr
	CmdTCSetAttr
	CmdAbort
	CmdSendMsg

	// Block-driver specific commands.
	CmdBlockRead
	CmdBlockWrite
	CmdBlockFlush
	CmdBlockDiscard
)

func (c Cmd) String() string {
	switch c {
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdIsatty:
		return "ISATTY"
	case CmdTCGetAttr:
		return "TCGETATTR"
	case CmdTCSetAttr:
		return "TCSETATTR"
	case CmdAbort:
		return "ABORT"
	case CmdSendMsg:
		return "SENDMSG"
	case CmdBlockRead:
		return "BLOCK_READ"
	case CmdBlockWrite:
		return "BLOCK_WRITE"
	case CmdBlockFlush:
		return "BLOCK_FLUSH"
	case CmdBlockDiscard:
		return "BLOCK_DISCARD"
	default:
		return fmt.Sprintf("CMD(%d)", uint32(c))
	}
}

// SendMsgClass further classifies a CmdSendMsg request, mirroring the
// auxiliary driver's GPIO/mailbox/text ioctl subclasses
// (original_source/aux/main.c's cmd_* switch).
type SendMsgClass uint32

const (
	SendMsgText SendMsgClass = iota
	SendMsgGPIO
	SendMsgMailbox
)

// Header is the fixed-size prefix every message on a Port starts
// with: which command, which partition/device unit it targets, and
// how many payload bytes follow.
type Header struct {
	Cmd       Cmd    `wire:"u32"`
	Unit      uint32 `wire:"u32"`
	RequestID uint64 `wire:"u64"`
	PayloadLen uint32 `wire:"u32"`
}

// HeaderSize is the marshaled size of Header in bytes.
const HeaderSize = 4 + 4 + 8 + 4

// MarshalHeader encodes h using native (little-endian) byte order, the
// same field-by-field binary.LittleEndian.PutUintNN discipline the
// teacher uses in marshalCtrlCmd/marshalIOCmd.
func MarshalHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Cmd))
	binary.LittleEndian.PutUint32(buf[4:8], h.Unit)
	binary.LittleEndian.PutUint64(buf[8:16], h.RequestID)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadLen)
	return buf
}

// UnmarshalHeader decodes a Header from the front of data.
func UnmarshalHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrShortMessage
	}
	return Header{
		Cmd:        Cmd(binary.LittleEndian.Uint32(data[0:4])),
		Unit:       binary.LittleEndian.Uint32(data[4:8]),
		RequestID:  binary.LittleEndian.Uint64(data[8:16]),
		PayloadLen: binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// ErrShortMessage is returned when a buffer is too small to contain
// the structure being unmarshaled.
var ErrShortMessage = fmt.Errorf("proto: message shorter than expected header/payload")

// ErrNotSupported is the error internal/loop logs for an unrecognized
// command code, which it answers with the -ENOTSUP errno and no payload
// (spec.md §4.2 step 3).
var ErrNotSupported = fmt.Errorf("proto: command not supported")

// Reply carries a command's result back to the caller: a negative
// Errno on failure (POSIX convention, matching the teacher's negative
// Result field in UblksrvIOCmd), or payload bytes on success.
type Reply struct {
	RequestID uint64
	Errno     int32
	Payload   []byte
}

// directMarshal packs a fixed-layout struct field-by-field using
// reflection, for request/reply types that don't warrant a
// hand-written marshaler. Adapted from the teacher's
// directMarshal/directUnmarshal, replacing its unsafe pointer-cast
// approach (unsound across struct padding/alignment differences) with
// reflect.Value field walks restricted to fixed-width integer kinds.
func directMarshal(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("proto: directMarshal requires a struct, got %s", rv.Kind())
	}

	var buf []byte
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		switch f.Kind() {
		case reflect.Uint8:
			buf = append(buf, byte(f.Uint()))
		case reflect.Uint16:
			var tmp [2]byte
			binary.LittleEndian.PutUint16(tmp[:], uint16(f.Uint()))
			buf = append(buf, tmp[:]...)
		case reflect.Uint32:
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(f.Uint()))
			buf = append(buf, tmp[:]...)
		case reflect.Uint64:
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], f.Uint())
			buf = append(buf, tmp[:]...)
		case reflect.Int32:
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(f.Int()))
			buf = append(buf, tmp[:]...)
		case reflect.Array:
			if f.Type().Elem().Kind() == reflect.Uint8 {
				for j := 0; j < f.Len(); j++ {
					buf = append(buf, byte(f.Index(j).Uint()))
				}
				continue
			}
			return nil, fmt.Errorf("proto: unsupported array element kind %s", f.Type().Elem().Kind())
		default:
			return nil, fmt.Errorf("proto: unsupported field kind %s", f.Kind())
		}
	}
	return buf, nil
}

// directUnmarshal is directMarshal's inverse: it walks dst's fields in
// declaration order, consuming the same number of bytes directMarshal
// would have produced for that field. dst must be a non-nil pointer to
// a struct.
func directUnmarshal(data []byte, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("proto: directUnmarshal requires a non-nil pointer, got %s", rv.Kind())
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("proto: directUnmarshal requires a struct, got %s", rv.Kind())
	}

	off := 0
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		switch f.Kind() {
		case reflect.Uint8:
			if off+1 > len(data) {
				return ErrShortMessage
			}
			f.SetUint(uint64(data[off]))
			off++
		case reflect.Uint16:
			if off+2 > len(data) {
				return ErrShortMessage
			}
			f.SetUint(uint64(binary.LittleEndian.Uint16(data[off : off+2])))
			off += 2
		case reflect.Uint32:
			if off+4 > len(data) {
				return ErrShortMessage
			}
			f.SetUint(uint64(binary.LittleEndian.Uint32(data[off : off+4])))
			off += 4
		case reflect.Uint64:
			if off+8 > len(data) {
				return ErrShortMessage
			}
			f.SetUint(binary.LittleEndian.Uint64(data[off : off+8]))
			off += 8
		case reflect.Int32:
			if off+4 > len(data) {
				return ErrShortMessage
			}
			f.SetInt(int64(int32(binary.LittleEndian.Uint32(data[off : off+4]))))
			off += 4
		case reflect.Array:
			if f.Type().Elem().Kind() != reflect.Uint8 {
				return fmt.Errorf("proto: unsupported array element kind %s", f.Type().Elem().Kind())
			}
			n := f.Len()
			if off+n > len(data) {
				return ErrShortMessage
			}
			for j := 0; j < n; j++ {
				f.Index(j).SetUint(uint64(data[off+j]))
			}
			off += n
		default:
			return fmt.Errorf("proto: unsupported field kind %s", f.Kind())
		}
	}
	return nil
}

// Marshal packs v, a fixed-layout struct (or pointer to one), into its
// wire representation. Exported for drivers that carry their own
// request/reply payloads, such as cmd/ttyd's CmdTCGetAttr/CmdTCSetAttr
// termios payload.
func Marshal(v interface{}) ([]byte, error) { return directMarshal(v) }

// Unmarshal decodes data into dst, Marshal's inverse. dst must be a
// pointer to the same struct shape Marshal was called with.
func Unmarshal(data []byte, dst interface{}) error { return directUnmarshal(data, dst) }
