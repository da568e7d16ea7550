// Package pic remaps the legacy 8259 master/slave controllers so
// their vectors don't collide with the CPU exception range, and
// issues end-of-interrupt on the common IRQ return path. Grounded on
// original_source/kernel/idt.c's remap sequence (the teacher has no
// PIC at all — QEMU's ARM target uses a GICv2 instead — so this
// follows spec.md §4.5 directly) and on internal/cpu's port-access
// wrappers for the in/out byte pattern every other port-mapped driver
// in this kernel shares.
package pic

import (
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/kconfig"
)

const (
	master     = kconfig.PIC1Command
	masterData = kconfig.PIC1Data
	slave      = kconfig.PIC2Command
	slaveData  = kconfig.PIC2Data

	cmdEOI   = 0x20
	icw1Init = 0x10
	icw1ICW4 = 0x01
	icw4_8086 = 0x01
)

// Remap reassigns master vectors to masterOffset and slave vectors to
// slaveOffset, preserving whatever IRQ lines were masked beforehand.
// spec.md §6 fixes these at 32 and 40.
func Remap(masterOffset, slaveOffset uint8) {
	savedMasterMask := cpu.InByte(masterData)
	savedSlaveMask := cpu.InByte(slaveData)

	cpu.OutByte(master, icw1Init|icw1ICW4)
	cpu.IOWait()
	cpu.OutByte(slave, icw1Init|icw1ICW4)
	cpu.IOWait()

	cpu.OutByte(masterData, masterOffset)
	cpu.IOWait()
	cpu.OutByte(slaveData, slaveOffset)
	cpu.IOWait()

	cpu.OutByte(masterData, 1<<2) // tell master: slave is cascaded on IRQ2
	cpu.IOWait()
	cpu.OutByte(slaveData, 2) // tell slave its cascade identity
	cpu.IOWait()

	cpu.OutByte(masterData, icw4_8086)
	cpu.IOWait()
	cpu.OutByte(slaveData, icw4_8086)
	cpu.IOWait()

	cpu.OutByte(masterData, savedMasterMask)
	cpu.OutByte(slaveData, savedSlaveMask)
}

// Init remaps to the offsets spec.md fixes: master at IRQBaseVector
// (32), slave at IRQBaseVector+8 (40).
func Init() {
	Remap(kconfig.IRQBaseVector, kconfig.IRQBaseVector+8)
}

// SendEOI acknowledges IRQ n (0-15). IRQs 8-15 need an EOI to the
// slave as well as the master, since the master only sees the
// cascaded line.
func SendEOI(irq int) {
	if irq >= 8 {
		cpu.OutByte(slave, cmdEOI)
	}
	cpu.OutByte(master, cmdEOI)
}

// maskPort returns which 8259 data port controls irq and which bit
// within it selects that line.
func maskPort(irq int) (port uint16, line uint) {
	if irq >= 8 {
		return slaveData, uint(irq - 8)
	}
	return masterData, uint(irq)
}

// applyMask returns current with irq's bit set or cleared.
func applyMask(current uint8, line uint, masked bool) uint8 {
	if masked {
		return current | 1<<line
	}
	return current &^ (1 << line)
}

// SetMask enables or disables a single IRQ line.
func SetMask(irq int, masked bool) {
	port, line := maskPort(irq)
	cpu.OutByte(port, applyMask(cpu.InByte(port), line, masked))
}
