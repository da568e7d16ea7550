// Package idt builds and loads the 256-entry interrupt descriptor
// table: vectors 0-31 are CPU exceptions, 32-47 are the remapped
// legacy IRQs, and the remainder are left not-present since nothing
// in this kernel ever raises them — spec.md §4.6. Gate words are
// packed with internal/bitfield, the same named-field discipline
// internal/gdt uses, grounded on original_source/kernel/idt.c for the
// gate layout and on mazboot/golang/main/exceptions.go's EC-name
// table (EC_UNKNOWN, EC_TRAP_WFx, ...) for the exception-name-table
// idiom, here re-expressed as the 32 x86 exception mnemonics instead
// of ARM's exception classes.
package idt

import (
	"reflect"
	"unsafe"

	"github.com/aurora-os/aurora/internal/bitfield"
	"github.com/aurora-os/aurora/internal/kconfig"
)

const vectorCount = 256

// stubbedVectors is the number of low vectors backed by a real
// assembly stub: 32 CPU exceptions plus 16 remapped IRQs.
const stubbedVectors = 48

// hasErrorCode reports which exception vectors the CPU itself pushes
// an error code for; every other vector gets a zero placeholder from
// its stub so the common entry's frame layout never varies.
var hasErrorCode = map[int]bool{
	8: true, 10: true, 11: true, 12: true,
	13: true, 14: true, 17: true, 21: true,
}

// exceptionNames labels vectors 0-31 for the panic dump.
var exceptionNames = [32]string{
	"divide-by-zero", "debug", "nmi", "breakpoint", "overflow",
	"bound-range", "invalid-opcode", "device-not-available",
	"double-fault", "coprocessor-segment-overrun", "invalid-tss",
	"segment-not-present", "stack-segment-fault", "general-protection",
	"page-fault", "reserved-15", "x87-fp", "alignment-check",
	"machine-check", "simd-fp", "virtualization", "control-protection",
	"reserved-22", "reserved-23", "reserved-24", "reserved-25",
	"reserved-26", "reserved-27", "reserved-28", "hypervisor-injection",
	"vmm-communication", "security-exception",
}

// ExceptionName returns the mnemonic for a CPU exception vector, or
// "unknown" outside 0-31.
func ExceptionName(vector int) string {
	if vector < 0 || vector >= len(exceptionNames) {
		return "unknown"
	}
	return exceptionNames[vector]
}

type gateWord struct {
	OffsetLow uint16 `bitfield:"16"`
	Selector  uint16 `bitfield:"16"`
	IST       uint8  `bitfield:"3"`
	Reserved0 uint8  `bitfield:"5"`
	GateType  uint8  `bitfield:"4"` // 0xE: 64-bit interrupt gate
	Zero0     bool   `bitfield:"1"`
	DPL       uint8  `bitfield:"2"`
	Present   bool   `bitfield:"1"`
	OffsetMid uint16 `bitfield:"16"`
}

func packLow(w gateWord) uint64 {
	packed, err := bitfield.Pack(w, &bitfield.Config{NumBits: 64})
	if err != nil {
		panic("idt: " + err.Error())
	}
	return packed
}

type entry struct {
	low  uint64
	high uint64 // offsetHigh in the low 32 bits, reserved zero above
}

var table [vectorCount]entry

func interruptGate(handler uintptr, dpl uint8) entry {
	low := packLow(gateWord{
		OffsetLow: uint16(handler & 0xFFFF),
		Selector:  kconfig.SelKernCode,
		GateType:  0xE,
		DPL:       dpl,
		Present:   true,
		OffsetMid: uint16((handler >> 16) & 0xFFFF),
	})
	return entry{low: low, high: uint64(handler >> 32)}
}

// Frame is the uniform trap frame every stub builds before calling
// into Go: the CPU-pushed tail, the vector and error code the stub
// adds, and the saved general-purpose registers, matching spec.md
// §4.6's "{saved integer regs, int_no, error_code, cpu-pushed frame}"
// — declared here in the reverse of push order since this struct is
// overlaid on the stack from the frame pointer upward.
type Frame struct {
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RBP, RDI, RSI, RDX, RCX, RBX, RAX    uint64
	Vector, ErrorCode                    uint64
	RIP, CS, RFLAGS, RSP, SS             uint64
}

// ExceptionHandlerFn formats and reports a CPU exception. It is
// expected not to return for faults the kernel cannot recover from;
// internal/interrupts installs the real implementation.
type ExceptionHandlerFn func(f *Frame)

// IRQHandlerFn services one remapped legacy IRQ, issuing its own EOI.
type IRQHandlerFn func(irq int, f *Frame)

var (
	onException ExceptionHandlerFn
	onIRQ       IRQHandlerFn
)

// SetHandlers registers the callbacks the assembly trampolines
// dispatch into. Called once during boot by internal/interrupts,
// before the PIC and scheduler are initialized and while interrupts
// are still disabled; taking the handlers as callbacks keeps this
// package free of a dependency on either.
func SetHandlers(exception ExceptionHandlerFn, irq IRQHandlerFn) {
	onException = exception
	onIRQ = irq
}

// exceptionEntryGo is called by every exception stub's common tail
// (idt_amd64.s) with the assembled Frame sitting on the stack.
func exceptionEntryGo(f *Frame) {
	if onException != nil {
		onException(f)
		return
	}
	for {
		halt()
	}
}

// irqEntryGo is called by every IRQ stub's common tail.
func irqEntryGo(f *Frame) {
	irq := int(f.Vector) - kconfig.IRQBaseVector
	if onIRQ != nil {
		onIRQ(irq, f)
	}
}

// addressOf returns a top-level asm function's entry point. These
// stubs are never closures, so reflect's reported pointer is their
// real, stable code address.
func addressOf(f func()) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// stubs are the 48 tiny per-vector assembly trampolines implemented
// in idt_amd64.s; each pushes (if needed) a placeholder error code
// and its own vector number, then jumps to the shared exception or
// IRQ entry.
var stubs = [stubbedVectors]func(){
	stub0, stub1, stub2, stub3, stub4, stub5, stub6, stub7,
	stub8, stub9, stub10, stub11, stub12, stub13, stub14, stub15,
	stub16, stub17, stub18, stub19, stub20, stub21, stub22, stub23,
	stub24, stub25, stub26, stub27, stub28, stub29, stub30, stub31,
	stub32, stub33, stub34, stub35, stub36, stub37, stub38, stub39,
	stub40, stub41, stub42, stub43, stub44, stub45, stub46, stub47,
}

// Init builds every gate for vectors 0-47 and loads the table.
// Vectors 48-255 stay zeroed (not present).
func Init() {
	for v := 0; v < stubbedVectors; v++ {
		table[v] = interruptGate(addressOf(stubs[v]), 0)
	}
	load(uintptr(unsafe.Pointer(&table[0])), uint16(vectorCount*16-1))
}

// load is implemented in idt_amd64.s (LIDT).
func load(tableAddr uintptr, limit uint16)

// halt duplicates internal/cpu's Halt as a tiny wrapper in
// idt_amd64.s, so the panic spin loop here needs no import of
// internal/cpu.
func halt()

// stub0..stub47 are the per-vector entry points idt_amd64.s defines:
// stub0-stub31 for CPU exceptions, stub32-stub47 for the remapped
// legacy IRQs (vector 32 = IRQ 0, ... vector 47 = IRQ 15).
func stub0()
func stub1()
func stub2()
func stub3()
func stub4()
func stub5()
func stub6()
func stub7()
func stub8()
func stub9()
func stub10()
func stub11()
func stub12()
func stub13()
func stub14()
func stub15()
func stub16()
func stub17()
func stub18()
func stub19()
func stub20()
func stub21()
func stub22()
func stub23()
func stub24()
func stub25()
func stub26()
func stub27()
func stub28()
func stub29()
func stub30()
func stub31()
func stub32()
func stub33()
func stub34()
func stub35()
func stub36()
func stub37()
func stub38()
func stub39()
func stub40()
func stub41()
func stub42()
func stub43()
func stub44()
func stub45()
func stub46()
func stub47()
