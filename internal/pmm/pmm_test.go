package pmm_test

import (
	"testing"
	"unsafe"

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/aurora-os/aurora/internal/pmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sixteenMiBBootInfo builds a BootInfo declaring pages 256..4095
// (the 1 MiB..16 MiB range) as conventional, matching spec.md §8
// scenario S1.
func sixteenMiBBootInfo(t *testing.T) *bootinfo.BootInfo {
	t.Helper()
	entries := []bootinfo.MemoryMapEntry{
		{Type: bootinfo.MemoryTypeConventional, PhysStart: 0x100000, Pages: 3840},
	}
	return &bootinfo.BootInfo{
		Magic:                bootinfo.Magic,
		MemoryMapPhys:        uint64(uintptr(unsafe.Pointer(&entries[0]))),
		MemoryMapEntryCount:  uint64(len(entries)),
		MemoryMapEntryStride: uint64(unsafe.Sizeof(bootinfo.MemoryMapEntry{})),
		KernelPhysBase:       0x100000,
		KernelImageSize:      0, // valid record, zero size: no kernel range is reserved beyond the low 1 MiB
	}
}

func TestAllocFrameFirstFitLowToHigh(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))

	// S1: first ten allocations return PFNs 256..265 in order.
	for i := 0; i < 10; i++ {
		got := m.AllocFrame()
		require.NotZero(t, got)
		want := uint64(0x100000 + i*0x1000)
		assert.Equal(t, want, got)
	}
}

func TestFreeThenAllocReturnsSameFrame(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))

	var allocated []uint64
	for i := 0; i < 10; i++ {
		allocated = append(allocated, m.AllocFrame())
	}

	freed := allocated[4] // PFN 260
	m.FreeFrame(freed)

	next := m.AllocFrame()
	assert.Equal(t, freed, next)
}

func TestAllocFramesFindsContiguousRun(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))

	run := m.AllocFrames(4)
	require.NotZero(t, run)

	// the four frames must now read as used: a subsequent single-page
	// alloc cannot return any of them.
	single := m.AllocFrame()
	assert.NotEqual(t, run, single)
	for i := uint64(0); i < 4; i++ {
		assert.NotEqual(t, run+i*0x1000, single)
	}
}

func TestAllocNeverReturnsPFNZero(t *testing.T) {
	m := &pmm.Manager{}
	// Declare page 0 itself as conventional/free, along with 16 pages
	// above the reserved low 1 MiB; AllocFrame must still never hand
	// out page 0 since it doubles as the kernel's null-pointer
	// convention, and must find one of the frames above 1 MiB.
	entries := []bootinfo.MemoryMapEntry{
		{Type: bootinfo.MemoryTypeConventional, PhysStart: 0, Pages: 256 + 16},
	}
	info := &bootinfo.BootInfo{
		Magic:                bootinfo.Magic,
		MemoryMapPhys:        uint64(uintptr(unsafe.Pointer(&entries[0]))),
		MemoryMapEntryCount:  1,
		MemoryMapEntryStride: uint64(unsafe.Sizeof(bootinfo.MemoryMapEntry{})),
	}
	m.Init(info)

	got := m.AllocFrame()
	assert.NotZero(t, got)
}

func TestFreeCountRoundTrips(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))

	freeBefore, _ := m.Stats()

	var frames []uint64
	for i := 0; i < 20; i++ {
		frames = append(frames, m.AllocFrame())
	}
	for _, f := range frames {
		m.FreeFrame(f)
	}

	freeAfter, _ := m.Stats()
	assert.Equal(t, freeBefore, freeAfter)
}

func TestDoubleFreeIsIgnored(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))

	f := m.AllocFrame()
	m.FreeFrame(f)
	freeAfterOne, _ := m.Stats()
	m.FreeFrame(f) // double free: must not increment free count twice
	freeAfterTwo, _ := m.Stats()
	assert.Equal(t, freeAfterOne, freeAfterTwo)
}

func TestOutOfRangeFreeIsIgnored(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))
	freeBefore, _ := m.Stats()
	m.FreeFrame(1 << 40) // absurdly out of range
	freeAfter, _ := m.Stats()
	assert.Equal(t, freeBefore, freeAfter)
}

func TestAllFramesPageAligned(t *testing.T) {
	m := &pmm.Manager{}
	m.Init(sixteenMiBBootInfo(t))
	for i := 0; i < 50; i++ {
		got := m.AllocFrame()
		if got == 0 {
			break
		}
		assert.Zero(t, got%4096)
	}
}
