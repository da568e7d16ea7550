// Package serial drives the COM1 UART (16550-compatible) in 8N1
// mode. It is write-only from the kernel's point of view — spec.md
// §1 treats the console that reads this stream as an external
// collaborator — but it is a core component in its own right because
// the panic/crash-dump path writes to it directly, bypassing
// whatever higher-level console formatting exists, exactly as the
// teacher's uart_qemu.go distinguishes "ring-buffered" output from
// the "Direct" functions used from exception context (uartPutcDirect
// / uartPutsDirect), which never touch interrupt-driven state.
package serial

import "github.com/aurora-os/aurora/internal/cpu"

const (
	port = 0x3F8 // COM1

	regData        = port + 0
	regIntEnable   = port + 1
	regFIFOCtl     = port + 2
	regLineCtl     = port + 3
	regModemCtl    = port + 4
	regLineStatus  = port + 5

	lineStatusTHRE = 1 << 5 // transmit holding register empty
)

var initialized bool

// Init programs the UART for 115200 8N1, no interrupts. It is safe
// to call more than once.
func Init() {
	cpu.OutByte(regIntEnable, 0x00) // disable all UART interrupts
	cpu.OutByte(regLineCtl, 0x80)   // enable DLAB to set baud divisor
	cpu.OutByte(regData, 0x01)      // divisor low byte: 115200 baud
	cpu.OutByte(regIntEnable, 0x00) // divisor high byte
	cpu.OutByte(regLineCtl, 0x03)   // 8 bits, no parity, one stop bit
	cpu.OutByte(regFIFOCtl, 0xC7)   // enable FIFO, clear, 14-byte threshold
	cpu.OutByte(regModemCtl, 0x0B)  // DTR, RTS and OUT2 set; IER above keeps UART interrupts off
	initialized = true
}

// txReady reports whether the transmit holding register can accept
// another byte.
func txReady() bool {
	return cpu.InByte(regLineStatus)&lineStatusTHRE != 0
}

// WriteByte blocks until the UART can accept c, then transmits it.
// This is the one primitive every other write in this package and
// in internal/console ultimately funnels through.
func WriteByte(c byte) {
	if !initialized {
		return
	}
	for !txReady() {
	}
	if c == '\n' {
		for !txReady() {
		}
		cpu.OutByte(regData, '\r')
		for !txReady() {
		}
	}
	cpu.OutByte(regData, c)
}

// Write implements the "byte drain with a write(bytes) contract"
// console sink named in spec.md §1, and is also what syscall 1
// (write) calls for fd 1/2 in internal/syscall.
func Write(data []byte) int {
	for _, c := range data {
		WriteByte(c)
	}
	return len(data)
}
