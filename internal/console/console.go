// Package console formats small, non-allocating trace lines over
// internal/serial and, when built with the vgatext tag, mirrors them
// onto the VGA text buffer. It exists because nothing in the standard
// library's fmt/log stack is safe to call from interrupt or panic
// context on a freestanding kernel: both allocate, and allocation
// inside a fault handler that is trying to report a corrupted heap
// is how you get a second fault. Every helper here writes into a
// small stack buffer and pushes it straight to the UART, matching
// the teacher's uartPutHex64/uitoa helpers in kernel.go. The VGA side
// is grounded on original_source/kernel/console.c's console_putchar,
// which always writes serial first and only then touches the
// framebuffer if one is present; vgaWrite stands in for "framebuffer
// present" here, swapped by build tag instead of a runtime nil check
// since Aurora never probes for a framebuffer the way console_init
// does.
package console

import "github.com/aurora-os/aurora/internal/serial"

// vgaWrite mirrors data onto the VGA text buffer. The default build
// wires it to a no-op in console_vga_stub.go; console_vga_text.go
// (built with -tags vgatext) replaces it with a real write to
// kconfig.VGATextBufferPhys.
var vgaWrite = func([]byte) {}

// Trace writes msg followed by a newline. Used for ordinary
// bring-up narration, the kernel analogue of the teacher's
// uartPuts calls scattered through heapInit/pageInit.
func Trace(msg string) {
	serial.Write([]byte(msg))
	serial.WriteByte('\n')
	vgaWrite([]byte(msg))
	vgaWrite([]byte{'\n'})
}

// Warn is identical to Trace but prefixed, so a degraded-but-defined
// condition (spec.md §7's "invariant violation") stands out in the
// log without being promoted to a halt.
func Warn(msg string) {
	serial.Write([]byte("WARN: "))
	vgaWrite([]byte("WARN: "))
	Trace(msg)
}

// Hex64 writes label followed by a 16-digit hex rendering of v.
func Hex64(label string, v uint64) {
	serial.Write([]byte(label))
	vgaWrite([]byte(label))
	var buf [16]byte
	for i := 0; i < 16; i++ {
		nibble := byte(v>>uint(60-i*4)) & 0xF
		if nibble < 10 {
			buf[i] = '0' + nibble
		} else {
			buf[i] = 'A' + nibble - 10
		}
	}
	serial.Write(buf[:])
	serial.WriteByte('\n')
	vgaWrite(buf[:])
	vgaWrite([]byte{'\n'})
}

// Uint writes an unsigned decimal integer with no allocation.
func Uint(label string, v uint64) {
	serial.Write([]byte(label))
	vgaWrite([]byte(label))
	var buf [20]byte
	i := len(buf)
	if v == 0 {
		i--
		buf[i] = '0'
	}
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	serial.Write(buf[i:])
	serial.WriteByte('\n')
	vgaWrite(buf[i:])
	vgaWrite([]byte{'\n'})
}

// Panic is the crash-trace channel: it writes directly to the UART,
// bypassing anything that could itself be broken (a corrupted heap,
// a dead scheduler), then returns to let the caller halt. Callers are
// exception handlers that have already decided recovery is
// impossible, per spec.md §7 ("CPU exceptions: always fatal"), and
// spin on cpu.Halt() themselves after calling this. It mirrors to VGA
// too, since a hung serial console (nothing attached to COM1) should
// not mean a panic leaves no trace at all on real hardware.
func Panic(msg string) {
	serial.Write([]byte("\n*** KERNEL PANIC: "))
	serial.Write([]byte(msg))
	serial.Write([]byte(" ***\n"))
	vgaWrite([]byte("\n*** KERNEL PANIC: "))
	vgaWrite([]byte(msg))
	vgaWrite([]byte(" ***\n"))
}
