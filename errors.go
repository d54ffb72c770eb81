package driver

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured driver error carrying operation context and
// the kernel errno this request will reply with, grounded on the
// teacher's own *Error type (errors.go), retargeted from ublk's
// device/queue taxonomy to this repo's spec.md §7 taxonomy.
type Error struct {
	Op         string // operation that failed (e.g. "host-init", "read")
	DevicePath string // mount path, empty if not applicable
	Queue      int    // partition index, -1 if not applicable
	Code       ErrorCode
	Errno      syscall.Errno // kernel errno this surfaces to clients, 0 if none
	Msg        string
	Inner      error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.DevicePath != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.DevicePath))
	}
	if e.Queue >= 0 {
		parts = append(parts, fmt.Sprintf("partition=%d", e.Queue))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("driver: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("driver: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is spec.md §7's error taxonomy: the category a failure
// belongs to, independent of the specific operation that raised it.
type ErrorCode string

const (
	// ErrCodeConfiguration covers bad argv or a missing mount path —
	// fatal, the process exits non-zero before starting services.
	ErrCodeConfiguration ErrorCode = "configuration error"

	// ErrCodeHardwareDiscovery covers device-tree miss, MMIO mapping
	// failure, or IRQ registration failure — fatal.
	ErrCodeHardwareDiscovery ErrorCode = "hardware discovery error"

	// ErrCodeHostControllerInit covers host-controller timeout, wrong
	// host version, or no card present — fatal to the block driver;
	// clients see ENODEV on open because the mount is never published.
	ErrCodeHostControllerInit ErrorCode = "host controller init error"

	// ErrCodePerCommand covers command/data CRC, end-bit, index,
	// timeout, current-limit, auto-CMD12, ADMA, or tuning errors —
	// captured into per-device last-error fields; retried up to 3
	// times before surfacing.
	ErrCodePerCommand ErrorCode = "per-command hardware error"

	// ErrCodeCardState covers card removal mid-transfer or an
	// unexpected CURRENT_STATE — clears RCA; the next request
	// re-initializes via ensure-data-mode.
	ErrCodeCardState ErrorCode = "card state error"

	// ErrCodeClientRequest covers an unknown command code or
	// insufficient buffer — never fatal, replied as a negative errno.
	ErrCodeClientRequest ErrorCode = "client request error"

	// ErrCodeAbort covers a client-initiated cancellation of a
	// pending request.
	ErrCodeAbort ErrorCode = "aborted"
)

// NewError creates a structured error with no device/queue context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Queue: -1, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a structured error carrying the errno this
// request will reply with.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Queue: -1, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewDeviceError creates a structured error scoped to a mount path.
func NewDeviceError(op, devicePath string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, DevicePath: devicePath, Queue: -1, Code: code, Msg: msg}
}

// NewPartitionError creates a structured error scoped to one
// partition mount's request-handling path.
func NewPartitionError(op, devicePath string, partition int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, DevicePath: devicePath, Queue: partition, Code: code, Msg: msg}
}

// WrapError wraps inner with driver context, mapping syscall errnos
// to the closest matching ErrorCode.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if de, ok := inner.(*Error); ok {
		return &Error{
			Op:         op,
			DevicePath: de.DevicePath,
			Queue:      de.Queue,
			Code:       de.Code,
			Errno:      de.Errno,
			Msg:        de.Msg,
			Inner:      de.Inner,
		}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Queue: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Queue: -1, Code: ErrCodePerCommand, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENODEV, syscall.ENXIO:
		return ErrCodeHostControllerInit
	case syscall.EINVAL, syscall.E2BIG, syscall.ENOTSUP, syscall.EOPNOTSUPP:
		return ErrCodeClientRequest
	case syscall.EINTR:
		return ErrCodeAbort
	case syscall.ETIMEDOUT, syscall.EIO:
		return ErrCodePerCommand
	default:
		return ErrCodePerCommand
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Errno == errno
	}
	return false
}
