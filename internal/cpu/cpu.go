// Package cpu wraps the privileged x86_64 instructions the rest of
// the kernel needs: port I/O, halt, control-register and MSR access,
// and TLB invalidation. None of this is expressible in portable Go —
// every function here is a thin declaration resolved by a Plan 9
// assembly file in this package, following spec.md §9's instruction
// to keep privileged/assembly interop in narrow, well-documented
// files rather than scattering inline asm through the rest of the
// kernel. This mirrors the teacher's own pattern of declaring
// bodyless Go functions for everything that must touch real
// hardware state (read_cntv_ctl_el0, asm.GetExceptionVectorsAddr,
// and friends in mazboot/golang/main).
package cpu

// InByte reads one byte from the given I/O port.
func InByte(port uint16) uint8

// OutByte writes one byte to the given I/O port.
func OutByte(port uint16, value uint8)

// InWord reads one 16-bit word from the given I/O port.
func InWord(port uint16) uint16

// OutWord writes one 16-bit word to the given I/O port.
func OutWord(port uint16, value uint16)

// InLong reads one 32-bit dword from the given I/O port.
func InLong(port uint16) uint32

// OutLong writes one 32-bit dword to the given I/O port.
func OutLong(port uint16, value uint32)

// IOWait performs a throwaway write to the legacy wait port (0x80),
// giving the ISA bus time to settle after a preceding port write.
func IOWait()

// Halt executes hlt, suspending the CPU until the next interrupt.
func Halt()

// DisableInterrupts executes cli.
func DisableInterrupts()

// EnableInterrupts executes sti.
func EnableInterrupts()

// InterruptsEnabled reports whether IF is currently set in RFLAGS.
func InterruptsEnabled() bool

// LoadCR3 writes a new value (the PML4 physical address) into CR3,
// flushing the entire non-global TLB.
func LoadCR3(pml4Phys uintptr)

// ReadCR3 returns the current PML4 physical address.
func ReadCR3() uintptr

// ReadCR2 returns the faulting address recorded by the last page
// fault.
func ReadCR2() uintptr

// Invlpg invalidates the single TLB entry covering virt.
func Invlpg(virt uintptr)

// Rdmsr reads the model-specific register numbered msr.
func Rdmsr(msr uint32) uint64

// Wrmsr writes value into the model-specific register numbered msr.
func Wrmsr(msr uint32, value uint64)
