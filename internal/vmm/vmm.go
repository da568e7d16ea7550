// Package vmm is the virtual memory manager: 4-level x86_64 paging
// with a compile-time-allocated 16 MiB huge-page identity-map
// bootstrap, followed by dynamic 4 KiB mappings backed by the PMM.
// It is grounded on mazboot/golang/main/mmu.go's mapPage/initMMU
// shape, transplanted from ARM's 4 KiB/2 MiB granules to x86_64's
// PML4/PDPT/PD/PT walk, and on other_examples' gopher-os vmm.go for
// the injectable-frame-allocator idiom that makes the page-walk
// logic hosted-testable without real hardware.
package vmm

import (
	"unsafe"

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/cpu"
	"github.com/aurora-os/aurora/internal/kconfig"
)

// FrameAllocatorFn allocates one physical page frame, or returns 0 on
// exhaustion. The frame's contents are not assumed to be zeroed;
// walkLevel zeroes every table it allocates itself (the Open
// Question resolution in DESIGN.md: every table, intermediate or
// leaf, is zeroed at the point it is linked in, closing the teacher's
// "skip zeroing intermediate tables" shortcut rather than trusting
// the allocator to have done it).
type FrameAllocatorFn func() uintptr

// TableAccessFn resolves a table's physical address to a pointer the
// Go code can index. In production, defaultTableAt uses phys itself
// as the pointer, which is only valid for frames inside the
// identity-mapped low 16 MiB; the recursive mapping slot is not used
// for table access. Tests substitute a simulated-memory lookup instead of
// faking unsafe.Pointer arithmetic over addresses that were never
// really allocated.
type TableAccessFn func(phys uintptr) *pageTable

// Manager is the VMM instance. The zero value is unusable outside of
// tests that set every field explicitly; production code uses
// Global(), populated by Init.
type Manager struct {
	allocFrame FrameAllocatorFn
	tableAt    TableAccessFn
	pml4Phys   uintptr
}

var global Manager

// Global returns the singleton VMM instance.
func Global() *Manager { return &global }

// PML4Phys returns the physical address of the root page table
// currently loaded in CR3, the value process.Table.Create records as
// a new process's page-table root until per-process address spaces
// exist.
func (m *Manager) PML4Phys() uintptr { return m.pml4Phys }

func defaultTableAt(phys uintptr) *pageTable {
	return (*pageTable)(unsafe.Pointer(phys))
}

// bootstrapPML4/PDPT/PD are the three page-table-sized, page-aligned
// buffers reserved in the kernel image's BSS, wired as
// PML4[0] -> PDPT[0] -> PD[0..7] with PD entries marked huge, giving
// a 16 MiB identity map without ever calling the PMM or zeroing a
// 512-entry table — spec.md §4.2's "two-phase bring-up", phase one.
//
//go:align 4096
var bootstrapPML4 pageTable

//go:align 4096
var bootstrapPDPT pageTable

//go:align 4096
var bootstrapPD pageTable

// NewWithAllocator builds a Manager around an injected frame
// allocator and table accessor, used by tests to exercise the
// dynamic-mapping logic against simulated memory instead of real
// hardware.
func NewWithAllocator(alloc FrameAllocatorFn, tableAt TableAccessFn) *Manager {
	return &Manager{allocFrame: alloc, tableAt: tableAt}
}

// InitBootstrap wires the static 16 MiB huge-page identity map and
// loads it into CR3, activating paging. It never calls the PMM.
func (m *Manager) InitBootstrap() {
	for i := range bootstrapPD.entries {
		if i >= kconfig.BootstrapIdentityBytes/kconfig.HugePageSize {
			break
		}
		phys := uintptr(i) * kconfig.HugePageSize
		bootstrapPD.entries[i] = makeEntry(phys, FlagPresent|FlagWritable|FlagHuge)
	}
	bootstrapPDPT.entries[0] = makeEntry(uintptr(unsafe.Pointer(&bootstrapPD)), FlagPresent|FlagWritable)

	pml4Phys := uintptr(unsafe.Pointer(&bootstrapPML4))
	bootstrapPML4.entries[0] = makeEntry(uintptr(unsafe.Pointer(&bootstrapPDPT)), FlagPresent|FlagWritable)
	// Recursive mapping: the last PML4 slot points at the PML4 itself.
	bootstrapPML4.entries[kconfig.RecursiveSlot] = makeEntry(pml4Phys, FlagPresent|FlagWritable)

	m.allocFrame = nil // PMM not available yet; set by InitDynamic
	m.tableAt = defaultTableAt
	m.pml4Phys = pml4Phys

	cpu.LoadCR3(pml4Phys)
	console.Trace("vmm: 16 MiB identity bootstrap active")
}

// InitDynamic switches the Manager to use the PMM for further
// mappings, and maps the kernel image at its higher-half virtual
// base if a valid boot record with a nonzero kernel image size was
// supplied (spec.md §4.2's "kernel image
// mapping" paragraph); otherwise it identity-maps a 1 MiB window at
// the low kernel base for test mode.
func (m *Manager) InitDynamic(alloc FrameAllocatorFn, info *bootinfo.BootInfo) {
	m.allocFrame = alloc
	if m.tableAt == nil {
		m.tableAt = defaultTableAt
	}

	if info.Valid() && info.KernelImageSize != 0 {
		m.MapRange(uintptr(info.KernelVirtBase), uintptr(info.KernelPhysBase), uintptr(info.KernelImageSize), KernelTableFlags)
	} else {
		m.MapRange(uintptr(kconfig.DefaultKernelImagePhysBase), uintptr(kconfig.DefaultKernelImagePhysBase), uintptr(kconfig.DefaultKernelImageSize), KernelTableFlags)
	}
}

// walkLevel returns the table one level down from parent at index,
// allocating, zeroing and linking a fresh table if create is true
// and none exists yet. Zeroing the whole table (not just the entry
// the caller is about to fill) matters for every level, not only the
// leaf: a freshly allocated PT with one entry set must have the
// other 511 read back as not-present, never a stale present bit left
// over from whatever the frame previously held. It returns nil if the
// entry is absent and create is false, or if allocation fails.
func (m *Manager) walkLevel(parent *pageTable, index int, create bool) *pageTable {
	entry := parent.entries[index]
	if entry.present() {
		if create {
			// Intermediate tables always carry kernel RW, regardless of
			// the leaf flags the caller ultimately wants, so a later
			// user-mode leaf mapping under the same branch isn't blocked
			// by a stricter ancestor.
			parent.entries[index] = makeEntry(entry.addr(), entry.flags()|KernelTableFlags)
		}
		return m.tableAt(entry.addr())
	}
	if !create {
		return nil
	}
	if m.allocFrame == nil {
		return nil
	}
	phys := m.allocFrame()
	if phys == 0 {
		return nil
	}
	tbl := m.tableAt(phys)
	for i := range tbl.entries {
		tbl.entries[i] = 0
	}
	parent.entries[index] = makeEntry(phys, KernelTableFlags)
	return tbl
}

// MapPage maps one 4 KiB page. virt and phys are page-aligned down
// on entry. If the target PTE is already present its flags are
// overwritten; the mapping is not counted twice. Every successful
// map invalidates the affected TLB entry.
func (m *Manager) MapPage(virt, phys uintptr, flags uint64) bool {
	virt = pageAlignDown(virt)
	phys = pageAlignDown(phys)

	pml4i, pdpti, pdi, pti := vaIndices(virt)

	pml4 := m.tableAt(m.pml4Phys)
	pdpt := m.walkLevel(pml4, pml4i, true)
	if pdpt == nil {
		return false
	}
	pd := m.walkLevel(pdpt, pdpti, true)
	if pd == nil {
		return false
	}
	pt := m.walkLevel(pd, pdi, true)
	if pt == nil {
		return false
	}

	pt.entries[pti] = makeEntry(phys, flags|FlagPresent)
	cpu.Invlpg(virt)
	return true
}

// UnmapPage clears the leaf PTE for virt, if present, and
// invalidates its TLB entry. Intermediate tables are never freed by
// the core, per spec.md §3's lifecycle note.
func (m *Manager) UnmapPage(virt uintptr) {
	virt = pageAlignDown(virt)
	pml4i, pdpti, pdi, pti := vaIndices(virt)

	pml4 := m.tableAt(m.pml4Phys)
	pdpt := m.walkLevel(pml4, pml4i, false)
	if pdpt == nil {
		return
	}
	pd := m.walkLevel(pdpt, pdpti, false)
	if pd == nil {
		return
	}
	pt := m.walkLevel(pd, pdi, false)
	if pt == nil {
		return
	}
	pt.entries[pti] = 0
	cpu.Invlpg(virt)
}

// MapRange rounds the length out to whole pages and maps each one.
// Failure partway leaves already-mapped pages mapped; callers that
// need atomicity must unwind by calling UnmapRange over the attempted
// span.
func (m *Manager) MapRange(virt, phys uintptr, length uintptr, flags uint64) bool {
	pages := (length + 4095) / 4096
	for i := uintptr(0); i < pages; i++ {
		if !m.MapPage(virt+i*4096, phys+i*4096, flags) {
			return false
		}
	}
	return true
}

// UnmapRange rounds the length out to whole pages and unmaps each
// one.
func (m *Manager) UnmapRange(virt uintptr, length uintptr) {
	pages := (length + 4095) / 4096
	for i := uintptr(0); i < pages; i++ {
		m.UnmapPage(virt + i*4096)
	}
}

// GetPTE returns the raw entry (address and flags) backing virt's leaf mapping, or 0
// if no leaf entry exists at any level.
func (m *Manager) GetPTE(virt uintptr) uint64 {
	virt = pageAlignDown(virt)
	pml4i, pdpti, pdi, pti := vaIndices(virt)

	pml4 := m.tableAt(m.pml4Phys)
	pdpt := m.walkLevel(pml4, pml4i, false)
	if pdpt == nil {
		return 0
	}
	pdEntry := pdpt.entries[pdpti]
	if !pdEntry.present() {
		return 0
	}
	pd := m.tableAt(pdEntry.addr())
	pdLeaf := pd.entries[pdi]
	if pdLeaf.present() && pdLeaf.huge() {
		return uint64(pdLeaf)
	}
	if !pdLeaf.present() {
		return 0
	}
	pt := m.tableAt(pdLeaf.addr())
	return uint64(pt.entries[pti])
}

// GetPhysical translates virt to its mapped physical address, or 0
// if unmapped — spec.md §8 property 5.
func (m *Manager) GetPhysical(virt uintptr) uintptr {
	virt = pageAlignDown(virt)
	pml4i, pdpti, pdi, pti := vaIndices(virt)

	pml4 := m.tableAt(m.pml4Phys)
	pdpt := m.walkLevel(pml4, pml4i, false)
	if pdpt == nil {
		return 0
	}
	pdEntry := pdpt.entries[pdpti]
	if !pdEntry.present() {
		return 0
	}
	pd := m.tableAt(pdEntry.addr())
	pdLeaf := pd.entries[pdi]
	if !pdLeaf.present() {
		return 0
	}
	if pdLeaf.huge() {
		offset := virt & (kconfig.HugePageSize - 1)
		return pdLeaf.addr() + offset
	}
	pt := m.tableAt(pdLeaf.addr())
	leaf := pt.entries[pti]
	if !leaf.present() {
		return 0
	}
	return leaf.addr()
}

// FlushTLB reloads CR3, invalidating the entire non-global TLB.
func (m *Manager) FlushTLB() {
	cpu.LoadCR3(m.pml4Phys)
}

// FlushTLBSingle invalidates the single TLB entry covering virt.
func (m *Manager) FlushTLBSingle(virt uintptr) {
	cpu.Invlpg(virt)
}
