// Package syscall programs the fast-syscall MSRs and implements the
// dispatch table the entry trampoline calls into. Grounded on
// mazboot/golang/main/syscall.go's per-number SyscallXxx handler
// functions and its "unknown syscall" fallback (SyscallUnknown),
// replaced with spec.md §4.9's exact sixteen-slot ABI in place of the
// teacher's Linux-compatible surface (mmap, futex, openat, ...),
// which this kernel has no use for since it runs no hosted Go
// runtime on top of it.
package syscall

import (
	"reflect"
	"unsafe"

	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/aurora-os/aurora/internal/keyboard"
	"github.com/aurora-os/aurora/internal/pit"
	"github.com/aurora-os/aurora/internal/sched"
	"github.com/aurora-os/aurora/internal/serial"
)

// Handler is one dispatch-table entry. Arguments map onto the System
// V register order the entry trampoline already arranged: rdi, rsi,
// rdx, r10, r8, r9.
type Handler func(a1, a2, a3, a4, a5, a6 uint64) int64

var table [kconfig.MaxSyscallNumber + 1]Handler

// callCount tracks dispatches per number, the hosted-testable analogue
// of the teacher's per-syscall CallCount debug counters.
var callCount [kconfig.MaxSyscallNumber + 1]uint64

func init() {
	table[kconfig.SysExit] = sysExit
	table[kconfig.SysWrite] = sysWrite
	table[kconfig.SysRead] = sysRead
	table[kconfig.SysGetpid] = sysGetpid
	table[kconfig.SysSleep] = sysSleep
	table[kconfig.SysYield] = sysYield
}

// Dispatch validates n, counts the call, and invokes the indexed
// handler. Unknown or unimplemented syscalls return -ENOSYS, matching
// the teacher's SyscallUnknown fallback generalized into a table miss
// instead of a print-and-continue.
func Dispatch(n, a1, a2, a3, a4, a5, a6 uint64) int64 {
	if n > kconfig.MaxSyscallNumber {
		return -kconfig.ENOSYS
	}
	callCount[n]++
	h := table[n]
	if h == nil {
		return -kconfig.ENOSYS
	}
	return h(a1, a2, a3, a4, a5, a6)
}

// CallCount returns how many times syscall n has been dispatched,
// for diagnostics and tests.
func CallCount(n uint64) uint64 {
	if n > kconfig.MaxSyscallNumber {
		return 0
	}
	return callCount[n]
}

func sysExit(status, _, _, _, _, _ uint64) int64 {
	if cur := sched.Global().Current(); cur != nil && cur.Process != nil {
		cur.Process.Exit(int(int32(status)))
	}
	sched.Global().Yield()
	return 0
}

// sysWrite implements write(fd, buf, n): fd must be 1 (stdout) or 2
// (stderr), both of which this kernel routes to the same serial sink
// since there is only one console.
func sysWrite(fd, bufAddr, count, _, _, _ uint64) int64 {
	if fd != 1 && fd != 2 {
		return -kconfig.EBADF
	}
	if bufAddr == 0 {
		return -kconfig.EINVAL
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(bufAddr))), int(count))
	serial.Write(buf)
	return int64(count)
}

// sysRead implements read(fd, buf, n): fd must be stdin (0), and it
// blocks a byte at a time on the keyboard ring until n bytes have
// been delivered or the buffer is exhausted.
func sysRead(fd, bufAddr, count, _, _, _ uint64) int64 {
	if fd != 0 {
		return -kconfig.EBADF
	}
	if bufAddr == 0 {
		return -kconfig.EINVAL
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(bufAddr))), int(count))
	for i := range buf {
		buf[i] = keyboard.Global().ReadByte()
	}
	return int64(count)
}

func sysGetpid(_, _, _, _, _, _ uint64) int64 {
	cur := sched.Global().Current()
	if cur == nil || cur.Process == nil {
		return -1
	}
	return int64(cur.Process.PID)
}

func sysSleep(ms, _, _, _, _, _ uint64) int64 {
	pit.Sleep(ms)
	return 0
}

func sysYield(_, _, _, _, _, _ uint64) int64 {
	sched.Global().Yield()
	return 0
}

// kernelSyscallStack is the fixed stack entryTrampoline switches onto
// before calling into Go; the syscall gate never nests (SFMASK clears
// IF for its duration) so one static buffer is enough, unlike the
// per-thread stacks internal/process allocates from the heap.
var kernelSyscallStack [kconfig.DefaultKernelStackSize]byte

var kernelSyscallStackTop = uintptr(unsafe.Pointer(&kernelSyscallStack[len(kernelSyscallStack)-1]))

// frame is the register snapshot entryTrampoline builds on the kernel
// stack before calling entryGo, in the exact push order
// syscall_amd64.s assembles: num nearest the stack pointer, userRSP
// farthest. entryGo overwrites Num with Dispatch's result, which the
// trampoline pops back into rax for the caller.
type frame struct {
	Num, A1, A2, A3, A4, A5, A6  uint64
	UserRIP, UserRFLAGS, UserRSP uint64
}

// entryGo is entryTrampoline's sole call into Go: dispatch the
// request and hand the result back through the frame.
func entryGo(f *frame) {
	f.Num = uint64(Dispatch(f.Num, f.A1, f.A2, f.A3, f.A4, f.A5, f.A6))
}

// entryTrampoline is implemented in syscall_amd64.s.
func entryTrampoline()

// EntryPoint returns entryTrampoline's code address, the value
// InitMSRs installs into LSTAR.
func EntryPoint() uintptr {
	return reflect.ValueOf(entryTrampoline).Pointer()
}

// InitMSRs programs STAR/LSTAR/SFMASK/EFER for the syscall/sysret
// fast path, per spec.md §4.9, pointing LSTAR at this package's own
// entryTrampoline.
func InitMSRs() {
	star := (uint64(kconfig.SelUserCode32) << 48) | (uint64(kconfig.SelKernCode) << 32)
	cpu.Wrmsr(kconfig.MsrSTAR, star)
	cpu.Wrmsr(kconfig.MsrLSTAR, uint64(EntryPoint()))
	cpu.Wrmsr(kconfig.MsrSFMASK, 1<<9) // mask IF on entry

	efer := cpu.Rdmsr(kconfig.MsrEFER)
	cpu.Wrmsr(kconfig.MsrEFER, efer|kconfig.EferSCE)
}
