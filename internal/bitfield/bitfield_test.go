package bitfield_test

import (
	"testing"

	"github.com/aurora-os/aurora/internal/bitfield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pteFlags struct {
	Present    bool   `bitfield:"1"`
	Writable   bool   `bitfield:"1"`
	User       bool   `bitfield:"1"`
	WriteThru  bool   `bitfield:"1"`
	CacheDis   bool   `bitfield:"1"`
	Accessed   bool   `bitfield:"1"`
	Dirty      bool   `bitfield:"1"`
	Huge       bool   `bitfield:"1"`
	Global     bool   `bitfield:"1"`
	Reserved   uint16 `bitfield:"7"`
}

func TestPackRoundTrip(t *testing.T) {
	in := pteFlags{Present: true, Writable: true, Huge: true}
	packed, err := bitfield.Pack(&in, &bitfield.Config{NumBits: 16})
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1000_0011), packed)

	var out pteFlags
	require.NoError(t, bitfield.Unpack(&out, packed))
	assert.Equal(t, in, out)
}

func TestPackRejectsOverflow(t *testing.T) {
	type tooWide struct {
		V uint32 `bitfield:"4"`
	}
	_, err := bitfield.Pack(&tooWide{V: 17}, nil)
	assert.Error(t, err)
}

func TestPackRejectsWidthOverBudget(t *testing.T) {
	type overBudget struct {
		A uint8 `bitfield:"6"`
		B uint8 `bitfield:"6"`
	}
	_, err := bitfield.Pack(&overBudget{A: 1, B: 1}, &bitfield.Config{NumBits: 8})
	assert.Error(t, err)
}

func TestPackSkipsUntaggedFields(t *testing.T) {
	type mixed struct {
		Flag   bool `bitfield:"1"`
		Ignore string
	}
	packed, err := bitfield.Pack(&mixed{Flag: true, Ignore: "ignored"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), packed)
}
