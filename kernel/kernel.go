// Package kernel orchestrates bring-up: it calls every subsystem's
// Init in the order each depends on the last, then starts the
// scheduler. Grounded on the teacher's kernelMainBody in
// mazboot/golang/main/kernel.go — a flat, staged sequence of Init
// calls narrated over the console, interrupts left masked until the
// pieces that service them exist — re-ordered for x86's GDT-before-
// IDT-before-paging dependency chain instead of AArch64's MMU-first
// bring-up.
package kernel

import (
	"reflect"

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/gdt"
	"github.com/aurora-os/aurora/internal/heap"
	"github.com/aurora-os/aurora/internal/idt"
	"github.com/aurora-os/aurora/internal/interrupts"
	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/aurora-os/aurora/internal/pic"
	"github.com/aurora-os/aurora/internal/pit"
	"github.com/aurora-os/aurora/internal/pmm"
	"github.com/aurora-os/aurora/internal/process"
	"github.com/aurora-os/aurora/internal/sched"
	"github.com/aurora-os/aurora/internal/serial"
	"github.com/aurora-os/aurora/internal/syscall"
	"github.com/aurora-os/aurora/internal/vmm"
)

// Processes is the single process table every PCB/TCB in the system
// lives in, populated by Boot and consulted by SelfTest.
var Processes = process.NewTable()

// Boot runs the full bring-up sequence described in spec.md §2: GDT,
// IDT, the legacy PIC remap, physical and virtual memory, the kernel
// heap, the timebase, the scheduler's idle thread, the fast-syscall
// MSRs, and finally the jump into the idle thread. It never returns.
func Boot(info *bootinfo.BootInfo) {
	serial.Init()
	console.Trace("aurora: boot")

	gdt.Init()
	console.Trace("gdt: loaded")

	idt.Init()
	interrupts.Init()
	console.Trace("idt: loaded")

	pic.Init()
	console.Trace("pic: remapped")

	pmm.Global().Init(info)
	vmm.Global().InitBootstrap()
	vmm.Global().InitDynamic(func() uintptr { return uintptr(pmm.Global().AllocFrame()) }, info)
	console.Trace("memory: pmm/vmm online")

	heap.Global().Init(vmm.Global(), pmm.Global(), vmm.KernelTableFlags, kconfig.HeapVirtualBase)
	console.Trace("heap: online")

	pit.Init(kconfig.DefaultTimerHz)
	pit.SetSchedulerTick(sched.Global().Tick)
	console.Trace("pit: programmed")

	idle := spawnIdle()
	sched.Global().SetIdle(idle)
	sched.Global().Enqueue(idle)

	syscall.InitMSRs()
	console.Trace("syscall: MSRs programmed")

	if debugBuild {
		SelfTest()
	}

	cpu.EnableInterrupts()
	console.Trace("aurora: starting scheduler")
	sched.Global().Start()

	for {
		cpu.Halt()
	}
}

// debugBuild gates SelfTest. Aurora has no build-tag-driven release
// split yet, so this is the one compile-time switch standing in for
// it; flipping it to false is how a release build skips the in-kernel
// smoke tests.
const debugBuild = true

// spawnIdle creates pid 0, the process spec.md requires always be
// ready or running so the scheduler never has nothing to pick.
func spawnIdle() *process.TCB {
	p, tcb := Processes.Create("idle", vmm.Global().PML4Phys())
	if p == nil {
		console.Panic("process table exhausted creating idle process")
		for {
			cpu.Halt()
		}
	}
	stack := heap.Global().Malloc(kconfig.DefaultKernelStackSize)
	if stack == nil {
		console.Panic("heap exhausted allocating idle stack")
		for {
			cpu.Halt()
		}
	}
	tcb.SetStack(uintptr(stack), kconfig.DefaultKernelStackSize, idleEntry)
	return tcb
}

// idleLoop is the idle thread's body: halt until the next interrupt,
// forever. It is never entered by a call — the scheduler's bootstrap
// jump lands directly on it via the context seeded in SetStack.
func idleLoop() {
	for {
		cpu.Halt()
	}
}

// idleEntry is resolved once at package init since SetStack needs a
// stable code address rather than a closure value; idleLoop is never
// a closure, so reflect's reported pointer is its real, stable
// address, the same technique internal/idt's addressOf uses for its
// stub table.
var idleEntry = reflect.ValueOf(idleLoop).Pointer()
