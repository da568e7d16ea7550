// Package bootinfo describes the record the loader hands the kernel's
// single entry point, and the accessors that walk its memory map
// safely. The record's layout is fixed and caller-owned: the kernel
// never allocates to read it, mirroring the teacher's ATAG parser in
// page.go, which runs before any allocator exists and bounds its own
// iteration count rather than trusting the firmware.
package bootinfo

import "unsafe"

// Magic is the fixed 8-byte signature every valid BootInfo record
// starts with, little-endian: "AUR\0RO\0\0".
var Magic = [8]byte{'A', 'U', 'R', 0, 'R', 'O', 0, 0}

// MemoryType classifies one memory-map entry.
type MemoryType uint32

const (
	MemoryTypeReserved MemoryType = iota
	MemoryTypeConventional
	MemoryTypeACPIReclaimable
	MemoryTypeACPINVS
	MemoryTypeMMIO
	MemoryTypeBootServicesCode
	MemoryTypeBootServicesData
)

// MemoryMapEntry is the fixed-layout header every descriptor starts
// with. The firmware may embed trailing fields after it; the caller
// supplies the real per-entry stride, which must be at least
// unsafe.Sizeof(MemoryMapEntry{}).
type MemoryMapEntry struct {
	Type      MemoryType
	_         uint32 // padding to align the uint64 fields
	PhysStart uint64
	VirtStart uint64
	Pages     uint64
	Attr      uint64
}

// GraphicsMode is optional and only present when Flags&FlagHasGraphics
// is set.
type GraphicsMode struct {
	FramebufferPhys uint64
	Width           uint32
	Height          uint32
	PixelsPerScanLine uint32
}

const (
	FlagHasGraphics = 1 << 0
	FlagHasACPI     = 1 << 1
)

// BootInfo is the caller-owned record passed into the kernel entry
// point. MemoryMapEntryStride must be >= sizeof(MemoryMapEntry) since
// firmware-specific descriptors may carry extra trailing fields that
// the kernel does not interpret.
type BootInfo struct {
	Magic                [8]byte
	Flags                uint32
	_                    uint32
	MemoryMapPhys        uint64
	MemoryMapEntryCount  uint64
	MemoryMapEntryStride uint64
	Graphics             GraphicsMode
	ACPIRSDPPhys         uint64
	KernelPhysBase       uint64
	KernelVirtBase       uint64
	KernelImageSize      uint64
}

// Valid reports whether the record has the expected magic and a
// sane, non-degenerate memory-map descriptor stride. It never
// dereferences MemoryMapPhys.
func (b *BootInfo) Valid() bool {
	if b == nil {
		return false
	}
	if b.Magic != Magic {
		return false
	}
	if b.MemoryMapEntryStride < uint64(unsafe.Sizeof(MemoryMapEntry{})) {
		return false
	}
	return true
}

// maxMemoryMapEntries bounds iteration the same way the teacher's
// ATAG walk bounds itself against a corrupted or unterminated list:
// firmware memory maps on real machines rarely exceed a few hundred
// entries, so a four-digit ceiling catches corruption without ever
// being a real limit.
const maxMemoryMapEntries = 4096

// ForEachEntry iterates the memory map, calling fn for every
// descriptor. It stops early if fn returns false, and always stops
// at MemoryMapEntryCount or maxMemoryMapEntries, whichever is
// smaller, so a corrupted count can never spin the loop forever.
func (b *BootInfo) ForEachEntry(fn func(*MemoryMapEntry) bool) {
	if !b.Valid() || b.MemoryMapPhys == 0 {
		return
	}

	count := b.MemoryMapEntryCount
	if count > maxMemoryMapEntries {
		count = maxMemoryMapEntries
	}

	base := uintptr(b.MemoryMapPhys)
	stride := uintptr(b.MemoryMapEntryStride)
	for i := uint64(0); i < count; i++ {
		entry := (*MemoryMapEntry)(unsafe.Pointer(base + uintptr(i)*stride))
		if !fn(entry) {
			return
		}
	}
}

// KernelPhysRange returns the kernel image's physical [start, end)
// range, falling back to the 1-2 MiB default window used when no
// boot record is available (test mode, per spec.md §4.2).
func (b *BootInfo) KernelPhysRange(defaultBase, defaultSize uint64) (start, end uint64) {
	if b == nil || !b.Valid() {
		return defaultBase, defaultBase + defaultSize
	}
	// A valid record with an explicit zero image size means the
	// caller already accounted for the kernel image elsewhere (e.g.
	// within a declared-conventional range that excludes it); nothing
	// further needs reserving.
	return b.KernelPhysBase, b.KernelPhysBase + b.KernelImageSize
}
