// Command kernel is the freestanding entry point: a single
// C-callable function taking one pointer argument, the boot record,
// per spec.md §2. Grounded on mazboot/golang/main/kernel.go's
// KernelMainBody, exported under a fixed linker symbol so the
// loader's trampoline can call straight into it instead of ever
// running through Go's own runtime.main.
package main

import (
	_ "unsafe" // for go:linkname

	"github.com/aurora-os/aurora/internal/bootinfo"
	"github.com/aurora-os/aurora/kernel"
)

// KernelEntry is the symbol the loader's assembly stub jumps to with
// rdi holding the boot record pointer, System V convention. It never
// returns.
//
//go:linkname KernelEntry main.KernelEntry
//go:noinline
func KernelEntry(info *bootinfo.BootInfo) {
	kernel.Boot(info)
}

// main satisfies package main's build requirement; the loader calls
// KernelEntry directly and this is never reached.
func main() {
	KernelEntry(nil)
}
