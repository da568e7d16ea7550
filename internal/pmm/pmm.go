// Package pmm is the physical memory manager: a bitmap allocator over
// 4 KiB page frames, sized for up to 32 GiB of physical memory per
// spec.md §3. It replaces the teacher's linked free-list
// (mazboot/golang/main/page.go's freePages chain) with the bitmap
// spec.md mandates, but keeps its init ordering — mark everything
// used, then free the conventional ranges the boot record reports,
// then re-reserve the ranges nothing may ever hand out — straight
// from original_source/kernel/pmm.c.
package pmm

import (
	"sync"

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/kconfig"
)

const (
	pageSize = kconfig.PageSize

	// bitmapWords sizes a bitmap that can track 32 GiB of memory:
	// 32GiB / 4KiB = 8M pages, 8M bits = 1MiB of bitmap, 1MiB/8 = 128K
	// 64-bit words.
	bitmapBits  = 32 * 1024 * 1024 * 1024 / pageSize
	bitmapWords = bitmapBits / 64
)

// Manager is the bitmap frame allocator. The zero value is unusable;
// call Init first. It is not safe for concurrent use from more than
// one CPU — spec.md §5 makes the uniprocessor "interrupts disabled is
// our only critical section" assumption explicit, and this type
// follows it. Each operation holds a plain sync.Mutex for its
// duration; the mutex is not re-entrant, so a caller that interrupts
// a locked operation on the same CPU (an IRQ handler freeing a frame
// mid-allocation, say) and calls back into the Manager blocks on it
// rather than being serialized behind it.
type Manager struct {
	mu        sync.Mutex
	bitmap    [bitmapWords]uint64
	freePages uint64
}

var global Manager

// Global returns the singleton PMM instance, initialized exactly
// once at boot by Init.
func Global() *Manager { return &global }

// Init marks the bitmap entirely allocated, frees every conventional
// range the boot record reports, then re-reserves the low 1 MiB and
// the kernel image range. If info is nil or invalid it falls back to
// assuming 16 MiB of usable memory, minus the first 1 MiB, per
// spec.md §4.1.
func (m *Manager) Init(info *bootinfo.BootInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.bitmap {
		m.bitmap[i] = ^uint64(0)
	}
	m.freePages = 0

	if info.Valid() {
		info.ForEachEntry(func(e *bootinfo.MemoryMapEntry) bool {
			if e.Type != bootinfo.MemoryTypeConventional {
				return true
			}
			m.freeRangeLocked(e.PhysStart, e.Pages)
			return true
		})
	} else {
		const fallbackBytes = 16 * 1024 * 1024
		pages := uint64(fallbackBytes)/pageSize - uint64(kconfig.LowMemReservedBytes)/pageSize
		m.freeRangeLocked(uint64(kconfig.LowMemReservedBytes), pages)
	}

	m.markUsedRangeLocked(0, uint64(kconfig.LowMemReservedBytes)/pageSize)

	kStart, kEnd := info.KernelPhysRange(kconfig.DefaultKernelImagePhysBase, kconfig.DefaultKernelImageSize)
	m.markUsedRangeLocked(kStart, (kEnd-kStart+pageSize-1)/pageSize)

	console.Uint("pmm: free pages after init: ", m.freePages)
}

func pfn(phys uint64) uint64 { return phys / pageSize }

func (m *Manager) bitLocked(p uint64) bool {
	if p >= bitmapBits {
		return true
	}
	return m.bitmap[p/64]&(1<<(p%64)) != 0
}

func (m *Manager) setBitLocked(p uint64, used bool) {
	if p >= bitmapBits {
		return
	}
	wasUsed := m.bitLocked(p)
	if used {
		m.bitmap[p/64] |= 1 << (p % 64)
	} else {
		m.bitmap[p/64] &^= 1 << (p % 64)
	}
	if used && !wasUsed {
		m.freePages--
	} else if !used && wasUsed {
		m.freePages++
	}
}

func (m *Manager) freeRangeLocked(phys uint64, pages uint64) {
	start := pfn(phys)
	for p := start; p < start+pages && p < bitmapBits; p++ {
		m.setBitLocked(p, false)
	}
}

func (m *Manager) markUsedRangeLocked(phys uint64, pages uint64) {
	start := pfn(phys)
	for p := start; p < start+pages && p < bitmapBits; p++ {
		m.setBitLocked(p, true)
	}
}

// MarkUsed reserves the single frame containing phys.
func (m *Manager) MarkUsed(phys uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setBitLocked(pfn(phys), true)
}

// MarkUsedRange reserves n frames starting at phys.
func (m *Manager) MarkUsedRange(phys uint64, n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markUsedRangeLocked(phys, n)
}

// AllocFrame returns the physical address of one free 4 KiB frame,
// or 0 if none are available. PFN 0 is never returned even if free,
// since it is the null-pointer convention used throughout the
// kernel. The scan is first-fit, low to high, matching scenario S1
// in spec.md §8.
func (m *Manager) AllocFrame() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocFrameLocked()
}

func (m *Manager) allocFrameLocked() uint64 {
	for p := uint64(1); p < bitmapBits; p++ {
		if !m.bitLocked(p) {
			m.setBitLocked(p, true)
			return p * pageSize
		}
	}
	return 0
}

// AllocFrames finds n contiguous clear bits and returns the physical
// address of the first frame, or 0 if no run of that length exists.
func (m *Manager) AllocFrames(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var runStart, runLen uint64
	for p := uint64(1); p < bitmapBits; p++ {
		if m.bitLocked(p) {
			runLen = 0
			continue
		}
		if runLen == 0 {
			runStart = p
		}
		runLen++
		if runLen == n {
			for q := runStart; q < runStart+n; q++ {
				m.setBitLocked(q, true)
			}
			return runStart * pageSize
		}
	}
	return 0
}

// FreeFrame clears the bit for the frame at phys. Out-of-range or
// already-free addresses are ignored, logged but non-fatal per
// spec.md §4.1.
func (m *Manager) FreeFrame(phys uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pfn(phys)
	if p == 0 || p >= bitmapBits {
		console.Warn("pmm: free_frame out of range")
		return
	}
	if !m.bitLocked(p) {
		console.Warn("pmm: double free of frame")
		return
	}
	m.setBitLocked(p, false)
}

// FreeFrames clears n bits starting at phys.
func (m *Manager) FreeFrames(phys uint64, n uint64) {
	for i := uint64(0); i < n; i++ {
		m.FreeFrame(phys + i*pageSize)
	}
}

// Stats returns the current free/used page counts, used by
// kernel.SelfTest (SPEC_FULL.md supplemented feature 3).
func (m *Manager) Stats() (free, used uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freePages, bitmapBits - m.freePages
}
