package idt

import (
	"testing"
	"unsafe"

	"github.com/aurora-os/aurora/internal/kconfig"
	"github.com/stretchr/testify/assert"
)

func TestExceptionNameCoversAllVectors(t *testing.T) {
	assert.Equal(t, "divide-by-zero", ExceptionName(0))
	assert.Equal(t, "page-fault", ExceptionName(14))
	assert.Equal(t, "unknown", ExceptionName(32))
	assert.Equal(t, "unknown", ExceptionName(-1))
}

func TestHasErrorCodeMatchesArchitecturalSet(t *testing.T) {
	for v := 0; v < 32; v++ {
		want := v == 8 || (v >= 10 && v <= 14) || v == 17 || v == 21
		assert.Equal(t, want, hasErrorCode[v], "vector %d", v)
	}
}

func TestInterruptGatePacksHandlerAddress(t *testing.T) {
	const handler = uintptr(0x1122_3344_5566_7788)
	e := interruptGate(handler, 0)

	assert.Equal(t, uint64(0x7788), e.low&0xFFFF, "offset-low")
	assert.Equal(t, uint64(kconfig.SelKernCode), (e.low>>16)&0xFFFF, "selector")
	assert.Equal(t, uint64(0xE), (e.low>>40)&0xF, "gate type must be 64-bit interrupt gate")
	assert.NotZero(t, e.low&(1<<47), "present bit")
	assert.Equal(t, uint64(0x5566), (e.low>>48)&0xFFFF, "offset-mid")
	assert.Equal(t, uint64(0x1122_3344), e.high, "offset-high word")
}

func TestInterruptGateDPL3ForUserReachableVectors(t *testing.T) {
	e := interruptGate(0x1000, 3)
	assert.Equal(t, uint64(3), (e.low>>45)&0x3)
}

func TestFrameMatchesUniformLayoutSize(t *testing.T) {
	// 15 GP registers + vector + error_code + 5 CPU-pushed words.
	const wantFields = 15 + 2 + 5
	assert.Equal(t, uintptr(wantFields*8), unsafe.Sizeof(Frame{}))
}

func TestSetHandlersRegistersCallbacks(t *testing.T) {
	var gotVector int
	SetHandlers(
		func(f *Frame) {},
		func(irq int, f *Frame) { gotVector = irq },
	)
	irqEntryGo(&Frame{Vector: uint64(kconfig.IRQBaseVector + 1)})
	assert.Equal(t, 1, gotVector)

	onException = nil
	onIRQ = nil
}
