// Package keyboard decodes PS/2 scancode set 1 bytes into ASCII and
// holds them in a bounded ring buffer for blocking reads. Ring shape
// (head/tail modulo the buffer length, full when the next head would
// equal tail) grounded on the teacher's uartRingBuffer in
// uart_qemu.go; the scancode table and modifier-flag handling grounded
// on original_source/kernel/keyboard.c.
package keyboard

import (
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/kconfig"
)

// Modifier flag bits, same layout as original_source's KBD_FLAG_*.
const (
	flagLShift = 1 << iota
	flagRShift
	flagCtrl
	flagAlt
	flagCapsLock
)

const keyReleaseMask = 0x80

// Special scancodes that never produce a character.
const (
	scanLShift   = 0x2A
	scanRShift   = 0x36
	scanLCtrl    = 0x1D
	scanLAlt     = 0x38
	scanCapsLock = 0x3A
)

// scancodeToASCII is the unshifted US QWERTY scancode set 1 table.
// Index is the scancode with the release bit masked off; 0 means the
// key has no printable mapping.
var scancodeToASCII = [128]byte{
	0x00: 0, 0x01: 0, 0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5', 0x07: '6',
	0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0', 0x0C: '-', 0x0D: '=', 0x0E: '\b', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't', 0x15: 'y', 0x16: 'u', 0x17: 'i',
	0x18: 'o', 0x19: 'p', 0x1A: '[', 0x1B: ']', 0x1C: '\n', 0x1D: 0, 0x1E: 'a', 0x1F: 's',
	0x20: 'd', 0x21: 'f', 0x22: 'g', 0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l', 0x27: ';',
	0x28: '\'', 0x29: '`', 0x2A: 0, 0x2B: '\\', 0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v',
	0x30: 'b', 0x31: 'n', 0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/', 0x36: 0, 0x37: '*',
	0x38: 0, 0x39: ' ',
}

// scancodeToASCIIShifted is the same table with shift applied.
var scancodeToASCIIShifted = [128]byte{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%', 0x07: '^',
	0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')', 0x0C: '_', 0x0D: '+', 0x0E: '\b', 0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T', 0x15: 'Y', 0x16: 'U', 0x17: 'I',
	0x18: 'O', 0x19: 'P', 0x1A: '{', 0x1B: '}', 0x1C: '\n', 0x1E: 'A', 0x1F: 'S',
	0x20: 'D', 0x21: 'F', 0x22: 'G', 0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L', 0x27: ':',
	0x28: '"', 0x29: '~', 0x2B: '|', 0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V',
	0x30: 'B', 0x31: 'N', 0x32: 'M', 0x33: '<', 0x34: '>', 0x35: '?', 0x37: '*',
	0x39: ' ',
}

// ring is a fixed-size byte queue, full when the next head would
// collide with tail (one slot always unused, as in uartRingBuffer).
type ring struct {
	buf  [kconfig.KeyboardRingSize]byte
	head uint32
	tail uint32
}

func (r *ring) push(c byte) bool {
	next := (r.head + 1) % uint32(len(r.buf))
	if next == r.tail {
		return false
	}
	r.buf[r.head] = c
	r.head = next
	return true
}

func (r *ring) pop() (byte, bool) {
	if r.head == r.tail {
		return 0, false
	}
	c := r.buf[r.tail]
	r.tail = (r.tail + 1) % uint32(len(r.buf))
	return c, true
}

func (r *ring) count() int {
	if r.head >= r.tail {
		return int(r.head - r.tail)
	}
	return len(r.buf) - int(r.tail) + int(r.head)
}

// Driver holds decode state and the pending byte ring. There is one
// instance per keyboard controller; Aurora has exactly one, reachable
// through Global.
type Driver struct {
	buf       ring
	flags     uint8
	overruns  uint64
	scancodes uint64
}

var global Driver

// Global returns the kernel's single keyboard driver instance.
func Global() *Driver { return &global }

// decode translates a non-release scancode to the character it
// produces given the current modifier flags, or 0 if it has none.
func decode(scancode, flags uint8) byte {
	if scancode >= 128 {
		return 0
	}
	shifted := flags&(flagLShift|flagRShift) != 0
	var ch byte
	if shifted {
		ch = scancodeToASCIIShifted[scancode]
	} else {
		ch = scancodeToASCII[scancode]
	}
	if flags&flagCapsLock != 0 && ch >= 'a' && ch <= 'z' {
		ch = ch - 'a' + 'A'
	}
	return ch
}

// applyModifier updates flags for a modifier key transition and
// reports whether the scancode was a modifier (and so produces no
// character of its own).
func applyModifier(flags uint8, key uint8, pressed bool) (uint8, bool) {
	var bit uint8
	switch key {
	case scanLShift:
		bit = flagLShift
	case scanRShift:
		bit = flagRShift
	case scanLCtrl:
		bit = flagCtrl
	case scanLAlt:
		bit = flagAlt
	case scanCapsLock:
		if pressed {
			flags ^= flagCapsLock
		}
		return flags, true
	default:
		return flags, false
	}
	if pressed {
		flags |= bit
	} else {
		flags &^= bit
	}
	return flags, true
}

// HandleScancode processes one byte read from the PS/2 data port: it
// updates modifier state and, for a plain keypress with a printable
// mapping, pushes the decoded character onto the ring. Called from
// the IRQ1 handler with the byte already read from the hardware.
func (d *Driver) HandleScancode(scancode uint8) {
	d.scancodes++
	released := scancode&keyReleaseMask != 0
	key := scancode &^ keyReleaseMask

	newFlags, wasModifier := applyModifier(d.flags, key, !released)
	d.flags = newFlags
	if wasModifier || released {
		return
	}

	if ch := decode(key, d.flags); ch != 0 {
		if !d.buf.push(ch) {
			d.overruns++
		}
	}
}

// HasByte reports whether a decoded character is waiting to be read.
func (d *Driver) HasByte() bool { return d.buf.count() > 0 }

// ReadByte pops one decoded character, blocking with cpu.Halt between
// checks until the IRQ1 handler delivers one.
func (d *Driver) ReadByte() byte {
	for {
		if c, ok := d.buf.pop(); ok {
			return c
		}
		cpu.Halt()
	}
}

// Overruns returns the number of decoded characters dropped because
// the ring was full when they arrived.
func (d *Driver) Overruns() uint64 { return d.overruns }

// ScancodeCount returns the total number of raw scancodes processed.
func (d *Driver) ScancodeCount() uint64 { return d.scancodes }

// ReadPort reads one raw scancode byte from the PS/2 data port. Called
// by the IRQ1 handler before HandleScancode.
func ReadPort() uint8 {
	return cpu.InByte(kconfig.PS2DataPort)
}
