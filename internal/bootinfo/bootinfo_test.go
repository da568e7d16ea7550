package bootinfo_test

import (
	"testing"
	"unsafe"

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRejectsBadMagic(t *testing.T) {
	var b bootinfo.BootInfo
	assert.False(t, b.Valid())

	b.Magic = bootinfo.Magic
	b.MemoryMapEntryStride = uint64(unsafe.Sizeof(bootinfo.MemoryMapEntry{}))
	assert.True(t, b.Valid())
}

func TestValidRejectsShortStride(t *testing.T) {
	b := bootinfo.BootInfo{Magic: bootinfo.Magic, MemoryMapEntryStride: 4}
	assert.False(t, b.Valid())
}

func TestForEachEntryWalksMemoryMap(t *testing.T) {
	type descriptor struct {
		bootinfo.MemoryMapEntry
		trailing uint64 // simulate firmware-specific trailing fields
	}

	entries := make([]descriptor, 3)
	entries[0].Type = bootinfo.MemoryTypeReserved
	entries[0].PhysStart, entries[0].Pages = 0, 256
	entries[1].Type = bootinfo.MemoryTypeConventional
	entries[1].PhysStart, entries[1].Pages = 0x100000, 1024
	entries[2].Type = bootinfo.MemoryTypeConventional
	entries[2].PhysStart, entries[2].Pages = 0x500000, 2048

	b := bootinfo.BootInfo{
		Magic:                bootinfo.Magic,
		MemoryMapPhys:        uint64(uintptr(unsafe.Pointer(&entries[0]))),
		MemoryMapEntryCount:  uint64(len(entries)),
		MemoryMapEntryStride: uint64(unsafe.Sizeof(descriptor{})),
	}
	require.True(t, b.Valid())

	var seen []bootinfo.MemoryType
	b.ForEachEntry(func(e *bootinfo.MemoryMapEntry) bool {
		seen = append(seen, e.Type)
		return true
	})
	assert.Equal(t, []bootinfo.MemoryType{
		bootinfo.MemoryTypeReserved,
		bootinfo.MemoryTypeConventional,
		bootinfo.MemoryTypeConventional,
	}, seen)
}

func TestForEachEntryStopsEarly(t *testing.T) {
	entries := make([]bootinfo.MemoryMapEntry, 5)
	for i := range entries {
		entries[i].Type = bootinfo.MemoryTypeConventional
	}
	b := bootinfo.BootInfo{
		Magic:                bootinfo.Magic,
		MemoryMapPhys:        uint64(uintptr(unsafe.Pointer(&entries[0]))),
		MemoryMapEntryCount:  uint64(len(entries)),
		MemoryMapEntryStride: uint64(unsafe.Sizeof(bootinfo.MemoryMapEntry{})),
	}

	count := 0
	b.ForEachEntry(func(*bootinfo.MemoryMapEntry) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestKernelPhysRangeFallsBackWithoutBootInfo(t *testing.T) {
	start, end := (*bootinfo.BootInfo)(nil).KernelPhysRange(0x100000, 0x100000)
	assert.Equal(t, uint64(0x100000), start)
	assert.Equal(t, uint64(0x200000), end)
}
