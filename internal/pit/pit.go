// Package pit programs the legacy 8254 programmable interval timer
// as the kernel's only timebase: a fixed frequency driving IRQ0, a
// monotonic tick counter, and millisecond/second conversions derived
// from it. Grounded on mazboot/golang/main/timer_qemu.go's timerInit
// (the init-once guard, the "write control, write count, enable"
// sequence) and timerInterruptHandler (increment-then-dispatch tick
// body), transplanted here from the ARM generic timer's CNTV_*
// registers to the 8254's I/O ports per spec.md §4.4 — the counter
// math is exactly analogous, just driven by a fixed 1.193182 MHz
// crystal instead of a readable CNTFRQ_EL0.
package pit

import (
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/kconfig"
)

const (
	baseFrequency = kconfig.PITBaseFrequencyHz

	channel0Data = kconfig.PITChannel0
	commandPort  = kconfig.PITCommand

	cmdChannel0       = 0 << 6
	cmdAccessLoHiByte = 3 << 4
	cmdModeSquareWave = 3 << 1
	cmdBinaryCounting = 0 << 0
)

var (
	initialized bool
	frequency   uint32
	ticks       uint64

	schedulerTick func()
	userCallback  func()
)

// divisorFor converts a target frequency into the 16-bit count the
// PIT loads into channel 0, clamped to the hardware's representable
// range. A requested frequency of 0 is not rejected: it gets the
// largest divisor, 65535, i.e. the slowest rate the PIT can produce.
func divisorFor(frequencyHz uint32) uint16 {
	if frequencyHz == 0 {
		return 65535
	}
	divisor := baseFrequency / uint64(frequencyHz)
	if divisor < 1 {
		return 1
	}
	if divisor > 65535 {
		return 65535
	}
	return uint16(divisor)
}

// Init programs channel 0 for a square wave at frequencyHz and resets
// the tick counter. Calling it again after the first time is a no-op,
// matching timerInit's reentrancy guard.
func Init(frequencyHz uint32) {
	if initialized {
		return
	}
	divisor := divisorFor(frequencyHz)

	cpu.OutByte(commandPort, cmdChannel0|cmdAccessLoHiByte|cmdModeSquareWave|cmdBinaryCounting)
	cpu.OutByte(channel0Data, byte(divisor&0xFF))
	cpu.OutByte(channel0Data, byte(divisor>>8))

	frequency = baseFrequency / uint32(divisor)
	ticks = 0
	initialized = true
}

// SetSchedulerTick registers the callback HandleTick invokes on every
// IRQ0 before the optional user callback, giving the scheduler its
// preemption heartbeat.
func SetSchedulerTick(fn func()) {
	schedulerTick = fn
}

// SetUserCallback registers the single optional callback HandleTick
// invokes after the scheduler tick.
func SetUserCallback(fn func()) {
	userCallback = fn
}

// HandleTick is called by internal/interrupts on every IRQ0. It
// increments the tick counter, drives the scheduler if one is
// registered, then the optional user callback.
func HandleTick() {
	ticks++
	if schedulerTick != nil {
		schedulerTick()
	}
	if userCallback != nil {
		userCallback()
	}
}

// Ticks returns the number of timer interrupts serviced since Init.
func Ticks() uint64 {
	return ticks
}

// Frequency returns the actual programmed frequency, which may differ
// slightly from the requested one due to integer divisor rounding.
func Frequency() uint32 {
	return frequency
}

// Milliseconds converts the tick counter to elapsed milliseconds.
func Milliseconds() uint64 {
	if frequency == 0 {
		return 0
	}
	return ticks * 1000 / uint64(frequency)
}

// Seconds converts the tick counter to elapsed whole seconds.
func Seconds() uint64 {
	if frequency == 0 {
		return 0
	}
	return ticks / uint64(frequency)
}

// Sleep busy-halts the calling thread of execution until at least ms
// milliseconds of ticks have elapsed. Each iteration executes hlt, so
// the CPU is idle between ticks rather than spinning; any IRQ,
// including ones unrelated to the timer, will wake it to recheck.
func Sleep(ms uint64) {
	if frequency == 0 {
		return
	}
	target := ticks + (ms*uint64(frequency)+999)/1000
	for ticks < target {
		cpu.Halt()
	}
}
