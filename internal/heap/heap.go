// Package heap is the kernel's dynamic allocator: a first-fit,
// in-place-header block list growing on demand by whole pages. It is
// grounded on mazboot/golang/main/heap.go's heapSegment doubly-linked
// list (next/prev/isAllocated/segmentSize) and on
// original_source/kernel/kheap.c for the block layout this
// specification actually calls for — `{size, flags, next, prev,
// magic}` with a sentinel rather than the teacher's bare allocated
// bit, first-fit rather than the teacher's best-fit search, and
// growth driven by vmm.MapPage/pmm.AllocFrame instead of a single
// fixed-size region reserved up front.
package heap

import (
	"unsafe"

	"github.com/aurora-os/aurora/internal/console"
	"github.com/aurora-os/aurora/internal/kconfig"
)

// blockMagic marks a live header; it is checked on every free and by
// Validate, catching use-after-free and wild-pointer frees the same
// way the teacher's segment list trusted isAllocated blindly.
const blockMagic uint32 = 0x4845_4150 // "HEAP"

const (
	flagFree uint32 = 0
	flagUsed uint32 = 1
)

// block is the in-line header preceding every payload. size excludes
// the header itself.
type block struct {
	magic uint32
	flags uint32
	size  uint64
	next  *block
	prev  *block
}

var headerSize = uint64(unsafe.Sizeof(block{}))

// minSplitPayload is the smallest payload a split-off free block may
// be left holding — spec.md §4.3's "header + 16 bytes".
const minSplitPayload = 16

// PageMapper is the subset of vmm.Manager the heap needs to grow
// itself: map one freshly allocated physical frame at a virtual
// address with kernel RW flags.
type PageMapper interface {
	MapPage(virt, phys uintptr, flags uint64) bool
}

// FrameSource is the subset of pmm.Manager the heap needs: hand back
// one physical frame, or 0 on exhaustion. The frame's contents are not
// assumed to be zeroed — grow() writes a fresh block header over the
// start of every page it maps in, and a payload's bytes beyond that
// header are garbage until Malloc's caller writes them, the same
// contract a standard malloc gives; Calloc is the only path that
// actually zeroes a payload.
type FrameSource interface {
	AllocFrame() uint64
}

// Manager is the heap's state. The kernel page flags it maps new pages
// with are supplied by the caller at Init time (kernelFlags) so this
// package never imports vmm's flag constants directly, keeping the
// dependency direction the same as the teacher's
// page-management-before-heap ordering in memInit.
type Manager struct {
	mapper PageMapper
	frames FrameSource
	flags  uint64

	virtBase uint64
	virtTop  uint64 // one past the last mapped byte
	head     *block
}

var global Manager

// Global returns the singleton heap instance.
func Global() *Manager { return &global }

// Init wires the heap to its backing allocator and mapper and grows
// it by one page immediately, giving the first malloc something to
// find. virtBase is kconfig.HeapVirtualBase in production; tests pass
// the address of a real Go-heap arena instead, since the block list
// dereferences virtual addresses directly and only the live kernel
// page tables make kconfig.HeapVirtualBase itself addressable.
func (m *Manager) Init(mapper PageMapper, frames FrameSource, kernelFlags uint64, virtBase uint64) {
	m.mapper = mapper
	m.frames = frames
	m.flags = kernelFlags
	m.virtBase = virtBase
	m.virtTop = m.virtBase
	m.head = nil

	if !m.grow(kconfig.PageSize) {
		console.Panic("heap: initial growth failed")
	}
}

// grow extends the heap by at least minBytes, rounded up to whole
// pages, mapping each new page from a freshly allocated frame. The
// new space becomes one free block, coalesced with the old tail block
// if the old tail was free and address-adjacent (it always is, since
// growth is always appended at virtTop).
func (m *Manager) grow(minBytes uint64) bool {
	pages := (minBytes + kconfig.PageSize - 1) / kconfig.PageSize
	growStart := m.virtTop

	for i := uint64(0); i < pages; i++ {
		phys := m.frames.AllocFrame()
		if phys == 0 {
			console.Warn("heap: out of physical frames during growth")
			return false
		}
		virt := m.virtTop
		if !m.mapper.MapPage(uintptr(virt), uintptr(phys), m.flags) {
			console.Warn("heap: map_page failed during growth")
			return false
		}
		m.virtTop += kconfig.PageSize
	}

	grown := uint64Block(growStart)
	grown.magic = blockMagic
	grown.flags = flagFree
	grown.size = pages*kconfig.PageSize - headerSize
	grown.next = nil
	grown.prev = nil

	if m.head == nil {
		m.head = grown
		return true
	}

	tail := m.head
	for tail.next != nil {
		tail = tail.next
	}
	if tail.flags == flagFree {
		tail.size += headerSize + grown.size
		return true
	}
	tail.next = grown
	grown.prev = tail
	return true
}

func uint64Block(addr uint64) *block {
	return (*block)(unsafe.Pointer(uintptr(addr)))
}

func align8(n uint64) uint64 { return (n + 7) &^ 7 }

// Malloc returns a payload pointer of at least size bytes, or nil if
// the heap cannot grow further. Sizes are rounded up to 8 bytes.
func (m *Manager) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	size = align8(size)

	blk := m.findFreeFit(size)
	if blk == nil {
		growBy := size + headerSize
		if growBy < kconfig.PageSize {
			growBy = kconfig.PageSize
		}
		if !m.grow(growBy) {
			return nil
		}
		blk = m.findFreeFit(size)
		if blk == nil {
			return nil
		}
	}

	m.splitIfRoomy(blk, size)
	blk.flags = flagUsed
	return payloadOf(blk)
}

func (m *Manager) findFreeFit(size uint64) *block {
	for b := m.head; b != nil; b = b.next {
		if b.flags == flagFree && b.size >= size {
			return b
		}
	}
	return nil
}

// splitIfRoomy carves off a trailing free block when the remainder
// after satisfying size can still host a minimum-size free block.
func (m *Manager) splitIfRoomy(b *block, size uint64) {
	remainder := b.size - size
	if remainder < headerSize+minSplitPayload {
		return
	}

	newAddr := uintptr(unsafe.Pointer(b)) + uintptr(headerSize+size)
	newBlk := (*block)(unsafe.Pointer(newAddr))
	newBlk.magic = blockMagic
	newBlk.flags = flagFree
	newBlk.size = remainder - headerSize
	newBlk.next = b.next
	newBlk.prev = b
	if b.next != nil {
		b.next.prev = newBlk
	}
	b.next = newBlk
	b.size = size
}

func payloadOf(b *block) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + uintptr(headerSize))
}

func blockOf(payload unsafe.Pointer) *block {
	return (*block)(unsafe.Pointer(uintptr(payload) - uintptr(headerSize)))
}

// Calloc allocates n*size bytes, zeroed.
func (m *Manager) Calloc(n, size uint64) unsafe.Pointer {
	total := n * size
	ptr := m.Malloc(total)
	if ptr == nil {
		return nil
	}
	dst := unsafe.Slice((*byte)(ptr), total)
	for i := range dst {
		dst[i] = 0
	}
	return ptr
}

// Free validates the block's magic and used flag, marks it free, and
// coalesces with both neighbors when they are address-adjacent and
// also free.
func (m *Manager) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	b := blockOf(ptr)
	if b.magic != blockMagic {
		console.Warn("heap: free of bad magic, ignored")
		return
	}
	if b.flags != flagUsed {
		console.Warn("heap: double free, ignored")
		return
	}
	b.flags = flagFree

	if b.next != nil && b.next.flags == flagFree {
		next := b.next
		b.size += headerSize + next.size
		b.next = next.next
		if next.next != nil {
			next.next.prev = b
		}
	}
	if b.prev != nil && b.prev.flags == flagFree {
		prev := b.prev
		prev.size += headerSize + b.size
		prev.next = b.next
		if b.next != nil {
			b.next.prev = prev
		}
		b = prev
	}
	_ = b
}

// Realloc grows in place when the current block itself already fits
// new_size (a block can be larger than its last request when the
// split remainder was too small to carve off); otherwise it allocates
// fresh, copies the lesser of the two sizes, and frees the original.
// An address-adjacent free successor is not absorbed to make room.
func (m *Manager) Realloc(ptr unsafe.Pointer, newSize uint64) unsafe.Pointer {
	if ptr == nil {
		return m.Malloc(newSize)
	}
	if newSize == 0 {
		m.Free(ptr)
		return nil
	}
	newSize = align8(newSize)
	b := blockOf(ptr)

	if b.size >= newSize {
		m.splitIfRoomy(b, newSize)
		return ptr
	}

	fresh := m.Malloc(newSize)
	if fresh == nil {
		return nil
	}
	src := unsafe.Slice((*byte)(ptr), b.size)
	dst := unsafe.Slice((*byte)(fresh), b.size)
	copy(dst, src)
	m.Free(ptr)
	return fresh
}

// AlignedAlloc returns a payload pointer aligned to alignment (which
// must be a power of two), over-allocating to find room and recording
// the adjustment so Free can recover the true header — spec.md §9's
// resolution of the source's aligned_alloc bug, where the original
// computed the padding but never actually applied it to the returned
// pointer.
func (m *Manager) AlignedAlloc(size, alignment uint64) unsafe.Pointer {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil
	}
	// Worst case padding needed to reach an aligned payload address,
	// plus room to stash the real block's header pointer just before
	// the aligned payload.
	raw := m.Malloc(size + alignment + 8)
	if raw == nil {
		return nil
	}

	rawAddr := uintptr(raw)
	alignedAddr := (rawAddr + 8 + uintptr(alignment) - 1) &^ (uintptr(alignment) - 1)

	backPtr := (*uintptr)(unsafe.Pointer(alignedAddr - 8))
	*backPtr = rawAddr

	return unsafe.Pointer(alignedAddr)
}

// AlignedFree frees a pointer obtained from AlignedAlloc.
func (m *Manager) AlignedFree(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	backPtr := (*uintptr)(unsafe.Pointer(uintptr(ptr) - 8))
	m.Free(unsafe.Pointer(*backPtr))
}

// Validate walks every block, checking magic and forward/backward
// chain consistency, bounded by a block count ceiling so a corrupted
// cyclic list cannot spin forever.
func (m *Manager) Validate() bool {
	const maxBlocks = 1 << 20
	count := 0
	var last *block
	for b := m.head; b != nil; b = b.next {
		count++
		if count > maxBlocks {
			console.Warn("heap: validate aborted, possible cycle")
			return false
		}
		if b.magic != blockMagic {
			console.Warn("heap: validate found bad magic")
			return false
		}
		if b.prev != last {
			console.Warn("heap: validate found broken back-link")
			return false
		}
		last = b
	}
	return true
}

// Stats reports the total free and used payload bytes currently
// tracked by the block list.
func (m *Manager) Stats() (free, used uint64) {
	for b := m.head; b != nil; b = b.next {
		if b.flags == flagFree {
			free += b.size
		} else {
			used += b.size
		}
	}
	return
}
