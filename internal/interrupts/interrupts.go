// Package interrupts wires internal/idt's two callback slots to the
// rest of the kernel: unhandled CPU exceptions dump their frame and
// halt, and each remapped legacy IRQ is routed to the subsystem that
// owns it. Grounded on mazboot/golang/main/exceptions.go's
// handleException/irqHandlerGo split (print diagnostic, switch on
// cause, dispatch), re-expressed for x86 vectors instead of AArch64
// exception classes.
package interrupts

import (
	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/idt"
	"github.com/aurora-os/aurora/internal/keyboard"
	"github.com/aurora-os/aurora/internal/pic"
	"github.com/aurora-os/aurora/internal/pit"
)

// Legacy IRQ line numbers, pre-remap numbering (0-15).
const (
	irqTimer    = 0
	irqKeyboard = 1
)

// onTimer, onKeyboard and eoi are the privileged operations handleIRQ
// performs, held behind function variables (the same injectable-
// machine idiom internal/sched uses for its context-switch
// primitives) so the routing logic below is exercisable without
// touching real hardware state.
var (
	onTimer    = pit.HandleTick
	onKeyboard = func() { keyboard.Global().HandleScancode(keyboard.ReadPort()) }
	eoi        = pic.SendEOI
)

// SetHooks overrides the privileged operations handleIRQ performs.
// Production boot code never calls this; hosted tests substitute
// recording fakes to exercise the irq-to-subsystem routing.
func SetHooks(timer, kbd func(), eoiFn func(irq int)) {
	onTimer = timer
	onKeyboard = kbd
	eoi = eoiFn
}

// Init installs the exception and IRQ handlers. Called once during
// boot right after idt.Init, before internal/pic.Init, while
// interrupts are still disabled.
func Init() {
	idt.SetHandlers(handleException, handleIRQ)
}

// handleException is internal/idt's ExceptionHandlerFn: it dumps the
// full trap frame (vector, error code, CS/SS/RFLAGS/RIP/RSP, the
// saved general-purpose registers, and CR2 for page faults) and
// halts. None of the 32 CPU exceptions are recoverable in this
// kernel.
func handleException(f *idt.Frame) {
	console.Warn("EXCEPTION: " + idt.ExceptionName(int(f.Vector)))
	console.Hex64("vector", f.Vector)
	console.Hex64("error_code", f.ErrorCode)
	console.Hex64("rip", f.RIP)
	console.Hex64("cs", f.CS)
	console.Hex64("rflags", f.RFLAGS)
	console.Hex64("rsp", f.RSP)
	console.Hex64("ss", f.SS)
	console.Hex64("cr2", uint64(cpu.ReadCR2()))
	console.Hex64("rax", f.RAX)
	console.Hex64("rbx", f.RBX)
	console.Hex64("rcx", f.RCX)
	console.Hex64("rdx", f.RDX)
	console.Hex64("rsi", f.RSI)
	console.Hex64("rdi", f.RDI)
	console.Hex64("rbp", f.RBP)
	console.Hex64("r8", f.R8)
	console.Hex64("r9", f.R9)
	console.Hex64("r10", f.R10)
	console.Hex64("r11", f.R11)
	console.Hex64("r12", f.R12)
	console.Hex64("r13", f.R13)
	console.Hex64("r14", f.R14)
	console.Hex64("r15", f.R15)
	console.Panic("unrecoverable exception, halting")
	for {
		cpu.Halt()
	}
}

// handleIRQ is internal/idt's IRQHandlerFn: it routes a remapped
// legacy IRQ to its owning subsystem and always issues the EOI, even
// for lines nothing below claims.
func handleIRQ(irq int, f *idt.Frame) {
	switch irq {
	case irqTimer:
		onTimer()
	case irqKeyboard:
		onKeyboard()
	default:
		console.Uint("unhandled_irq", uint64(irq))
	}
	eoi(irq)
}
