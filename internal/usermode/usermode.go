// Package usermode builds the interrupt-return frame that drops the
// CPU from ring 0 to ring 3 and performs the jump. Grounded on the
// teacher's loadAndRunKmazarin/jumpToKmazarin pair in
// mazboot/golang/main/kernel.go: prepare a destination in Go, hand a
// single address to a bare assembly routine that performs the actual
// jump and never returns. x86 ring transition additionally needs a
// real CPU-popped frame (ss/rsp/rflags/cs/rip) where the teacher's
// ARM analogue only needed an entry address, so that part is grounded
// directly on original_source/kernel/usermode.c instead.
package usermode

import (
	"errors"

	"github.com/aurora-os/aurora/internal/gdt"
	"github.com/aurora-os/aurora/internal/heap"
	"github.com/aurora-os/aurora/internal/kconfig"
)

// ErrOutOfMemory is returned when the kernel heap cannot satisfy the
// user or kernel stack allocation.
var ErrOutOfMemory = errors.New("usermode: out of memory allocating stack")

// iretFrame is the interrupt-return frame in the exact order iretq
// expects to pop it, high address to low: ss, rsp, rflags, cs, rip.
// Declared low-to-high like idt.Frame's CPU-pushed tail for the same
// reason: this struct is a direct overlay of what gets pushed.
type iretFrame struct {
	RIP, CS, RFLAGS, RSP, SS uint64
}

// buildFrame constructs the return frame spec.md §4.10 specifies:
// user-data|RPL3 stack selector, the allocated stack's top, IF set
// (0x202), user-code64|RPL3 code selector, and the entry point.
func buildFrame(entry, userStackTop uintptr) iretFrame {
	return iretFrame{
		RIP:    uint64(entry),
		CS:     uint64(kconfig.SelUserCode64 | kconfig.RPL3),
		RFLAGS: 0x202,
		RSP:    uint64(userStackTop),
		SS:     uint64(kconfig.SelUserData | kconfig.RPL3),
	}
}

// StartUsermodeProcess allocates a 64 KiB user stack and an 8 KiB
// kernel stack from the kernel heap, installs the kernel stack top in
// the TSS's RSP0, and transitions to ring 3 at entry. It does not
// return on success; on allocation failure it returns an error
// instead of ever reaching the assembly jump.
func StartUsermodeProcess(entry uintptr) error {
	userStack := heap.Global().Malloc(kconfig.DefaultUserStackSize)
	if userStack == nil {
		return ErrOutOfMemory
	}
	kernelStack := heap.Global().Malloc(kconfig.DefaultKernelStackSize)
	if kernelStack == nil {
		return ErrOutOfMemory
	}

	userTop := uintptr(userStack) + uintptr(kconfig.DefaultUserStackSize)
	kernelTop := uintptr(kernelStack) + uintptr(kconfig.DefaultKernelStackSize)

	gdt.SetKernelStack(kernelTop)

	frame := buildFrame(entry, userTop)
	enterUsermode(&frame, uint64(kconfig.SelUserData|kconfig.RPL3))
	return nil // unreached
}

// enterUsermode is implemented in usermode_amd64.s: clears the
// integer registers, reloads DS/ES/FS/GS to userDataSelector, pushes
// *f in iretq order, and executes iretq.
func enterUsermode(f *iretFrame, userDataSelector uint64)
