//go:build vgatext

package console

import (
	"unsafe"

	"github.com/aurora-os/aurora/internal/kconfig"
)

// VGA text mode geometry, original_source/kernel/console.c's
// VGA_WIDTH/VGA_HEIGHT/VGA_MEMORY. The buffer is identity-mapped by
// the bootstrap page tables, same as every other sub-1MiB physical
// address internal/vmm's InitBootstrap covers.
const (
	vgaWidth  = 80
	vgaHeight = 25

	vgaColorWhiteOnBlack = 0x0F
)

var (
	vgaBuffer = (*[vgaWidth * vgaHeight]uint16)(unsafe.Pointer(uintptr(kconfig.VGATextBufferPhys)))
	vgaRow    int
	vgaCol    int
)

func init() {
	vgaWrite = vgaWriteText
}

// vgaWriteText mirrors data onto the VGA text buffer a byte at a
// time, advancing the cursor and scrolling the same way
// console_putchar/console_scroll do: newline resets the column and
// advances the row, and a row past the bottom shifts every line up
// one instead of wrapping back to the top.
func vgaWriteText(data []byte) {
	for _, c := range data {
		if c == '\n' {
			vgaRow++
			vgaCol = 0
		} else {
			vgaBuffer[vgaRow*vgaWidth+vgaCol] = vgaEntry(c)
			vgaCol++
			if vgaCol >= vgaWidth {
				vgaCol = 0
				vgaRow++
			}
		}
		if vgaRow >= vgaHeight {
			vgaScroll()
		}
	}
}

func vgaEntry(c byte) uint16 {
	return uint16(c) | uint16(vgaColorWhiteOnBlack)<<8
}

// vgaScroll shifts every line up by one and blanks the last line,
// console_scroll's move-then-clear in Go form.
func vgaScroll() {
	for y := 1; y < vgaHeight; y++ {
		for x := 0; x < vgaWidth; x++ {
			vgaBuffer[(y-1)*vgaWidth+x] = vgaBuffer[y*vgaWidth+x]
		}
	}
	for x := 0; x < vgaWidth; x++ {
		vgaBuffer[(vgaHeight-1)*vgaWidth+x] = vgaEntry(' ')
	}
	vgaRow = vgaHeight - 1
}
