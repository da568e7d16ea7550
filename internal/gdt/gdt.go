// Package gdt builds the kernel's global descriptor table and task
// state segment and loads them with LGDT/LTR. Descriptor bytes are
// packed through internal/bitfield rather than ad-hoc shifts, per
// spec.md §9's instruction to name packed hardware fields — this
// table is built once at boot, so the reflection cost internal/vmm
// avoids for its hot page-walk path is irrelevant here. The table
// layout itself is grounded on original_source/kernel/gdt.c; the
// "build a small fixed table of typed entries and load it" shape
// follows mazboot/golang/main/exceptions.go's InitializeExceptions,
// which assembles its vector table the same way before handing it to
// a single load routine.
package gdt

import (
	"unsafe"

	"github.com/aurora-os/aurora/internal/bitfield"
	"github.com/aurora-os/aurora/internal/kconfig"
)

// tableEntries covers null, kernel code/data, user code32/data/code64,
// and the two words of a 64-bit TSS descriptor, matching the
// selector layout in spec.md §6.
const tableEntries = 8

type segmentDescriptor struct {
	LimitLow    uint16 `bitfield:"16"`
	BaseLow     uint16 `bitfield:"16"`
	BaseMid     uint8  `bitfield:"8"`
	Accessed    bool   `bitfield:"1"`
	ReadWrite   bool   `bitfield:"1"`
	DirConform  bool   `bitfield:"1"`
	Executable  bool   `bitfield:"1"`
	DescType    bool   `bitfield:"1"` // S: 1 for code/data, 0 for system
	DPL         uint8  `bitfield:"2"`
	Present     bool   `bitfield:"1"`
	LimitHigh   uint8  `bitfield:"4"`
	AVL         bool   `bitfield:"1"`
	LongMode    bool   `bitfield:"1"`
	DefaultSize bool   `bitfield:"1"`
	Granularity bool   `bitfield:"1"`
	BaseHigh    uint8  `bitfield:"8"`
}

func pack(d segmentDescriptor) uint64 {
	packed, err := bitfield.Pack(d, &bitfield.Config{NumBits: 64})
	if err != nil {
		panic("gdt: " + err.Error())
	}
	return packed
}

func codeDescriptor(dpl uint8, long bool) uint64 {
	return pack(segmentDescriptor{
		ReadWrite:   true,
		Executable:  true,
		DescType:    true,
		DPL:         dpl,
		Present:     true,
		LongMode:    long,
		DefaultSize: !long,
		Granularity: true,
		LimitLow:    0xFFFF,
		LimitHigh:   0xF,
	})
}

func dataDescriptor(dpl uint8) uint64 {
	return pack(segmentDescriptor{
		ReadWrite:   true,
		DescType:    true,
		DPL:         dpl,
		Present:     true,
		DefaultSize: true,
		Granularity: true,
		LimitLow:    0xFFFF,
		LimitHigh:   0xF,
	})
}

// TaskStateSegment is the 64-bit TSS, used only for its RSP0 field;
// Init sets IOMapBase past the structure's end, which per the Intel
// SDM disables the I/O permission bitmap entirely.
type TaskStateSegment struct {
	reserved0 uint32
	RSP0      uint64
	RSP1      uint64
	RSP2      uint64
	reserved1 uint64
	IST       [7]uint64
	reserved2 uint64
	reserved3 uint16
	IOMapBase uint16
}

var tss TaskStateSegment
var table [tableEntries]uint64

// SetKernelStack installs the ring-0 stack pointer the CPU loads when
// an interrupt or exception arrives from ring 3 (syscall entry
// switches to its own static stack instead), per spec.md §4.9 — the
// scheduler must call this on every context switch, not just once at
// user-mode launch (spec.md §9's required fix to the source's
// single-assignment shortcut).
func SetKernelStack(rsp0 uintptr) {
	tss.RSP0 = uint64(rsp0)
}

// tssDescriptorLow/High build the 16-byte system descriptor a 64-bit
// TSS needs. Unlike the code/data descriptors above, this one spans
// two architecturally linked 64-bit words, so the upper word is
// assembled with a named shift rather than forced through the
// single-word Pack helper.
func tssDescriptorLow(base uintptr, limit uint32) uint64 {
	return pack(segmentDescriptor{
		LimitLow:   uint16(limit & 0xFFFF),
		BaseLow:    uint16(base & 0xFFFF),
		BaseMid:    uint8((base >> 16) & 0xFF),
		Accessed:   true, // type 0b1001: available 64-bit TSS
		Executable: true,
		DescType:   false,
		Present:    true,
		LimitHigh:  uint8((limit >> 16) & 0xF),
		BaseHigh:   uint8((base >> 24) & 0xFF),
	})
}

func tssDescriptorHigh(base uintptr) uint64 {
	return uint64(base >> 32)
}

// Init builds the table described by spec.md §6's selector layout and
// loads it, then loads the TSS selector.
func Init() {
	table[0] = 0                         // null, 0x00
	table[1] = codeDescriptor(0, true)   // kernel code, 0x08
	table[2] = dataDescriptor(0)         // kernel data, 0x10
	table[3] = codeDescriptor(3, false)  // user code32, 0x18 (unused in practice)
	table[4] = dataDescriptor(3)         // user data, 0x20
	table[5] = codeDescriptor(3, true)   // user code64, 0x28

	tss.IOMapBase = uint16(unsafe.Sizeof(tss))

	base := uintptr(unsafe.Pointer(&tss))
	limit := uint32(unsafe.Sizeof(tss) - 1)
	table[6] = tssDescriptorLow(base, limit) // TSS, 0x30
	table[7] = tssDescriptorHigh(base)

	load(uintptr(unsafe.Pointer(&table[0])), uint16(len(table)*8-1))
	loadTaskRegister(kconfig.SelTSS)
}

// load and loadTaskRegister are implemented in gdt_amd64.s.
func load(tableAddr uintptr, limit uint16)
func loadTaskRegister(selector uint16)
