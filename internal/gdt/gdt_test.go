package gdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeDescriptorKernelLongMode(t *testing.T) {
	d := codeDescriptor(0, true)
	assert.NotZero(t, d&(1<<47), "present bit must be set")
	assert.NotZero(t, d&(1<<43), "executable bit must be set")
	assert.NotZero(t, d&(1<<53), "long-mode bit must be set")
	assert.Zero(t, (d>>45)&0x3, "kernel descriptor DPL must be 0")
}

func TestCodeDescriptorUserHasDPL3(t *testing.T) {
	d := codeDescriptor(3, true)
	assert.Equal(t, uint64(3), (d>>45)&0x3)
}

func TestDataDescriptorIsWritableAndPresent(t *testing.T) {
	d := dataDescriptor(0)
	assert.NotZero(t, d&(1<<41), "writable bit must be set")
	assert.Zero(t, d&(1<<43), "data descriptor must not be executable")
	assert.NotZero(t, d&(1<<47))
}

func TestTSSDescriptorLowEncodesBaseAndLimit(t *testing.T) {
	const base = uintptr(0x1234_5678_0000)
	const limit = uint32(0x67)
	low := tssDescriptorLow(base, limit)

	assert.Equal(t, uint64(limit)&0xFFFF, low&0xFFFF, "limit occupies the low word's first 16 bits")
	assert.Equal(t, uint64(base)&0xFFFF, (low>>16)&0xFFFF, "base-low occupies the next 16 bits")
	assert.Equal(t, uint64((base>>16)&0xFF), (low>>32)&0xFF, "base-mid byte")
	assert.Equal(t, uint64((base>>24)&0xFF), (low>>56)&0xFF, "base-high byte")
	assert.NotZero(t, low&(1<<47), "TSS descriptor must be marked present")
}

func TestTSSDescriptorHighIsUpperBase(t *testing.T) {
	const base = uintptr(0x1_0000_0000_1234)
	high := tssDescriptorHigh(base)
	assert.Equal(t, uint64(base>>32), high)
}
