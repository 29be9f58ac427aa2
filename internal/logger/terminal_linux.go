//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

// tcgets is the ioctl request for reading terminal attributes on Linux.
const tcgets = 0x5401

// isTerminal reports whether fd is attached to a terminal. Color output in
// the text handler is only enabled when it is.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, errno := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		tcgets,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return errno == 0
}
