// Package bitfield packs and unpacks struct fields into machine
// words using a `bitfield:"bits"` struct tag. It is a simplified
// version based on golang.org/x/text/internal/gen/bitfield, kept as
// an in-tree helper (that package is internal to the standard
// toolchain and cannot be imported) and used wherever the kernel
// needs a named, reviewable way to build a packed hardware word
// instead of ad-hoc shifts — GDT access bytes and IDT gate flags.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config controls the target width of a packed value.
type Config struct {
	// NumBits is the maximum number of bits the packed value may use.
	// Zero means no limit is enforced.
	NumBits uint
}

// Pack packs the tagged fields of x, in declaration order, into the
// low NumBits bits of the returned uint64. Fields without a
// `bitfield:"n"` tag are skipped.
func Pack(x interface{}, c *Config) (uint64, error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return 0, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield: negative value %d for field %s", val, field.Name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64(1)<<bits - 1
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: total width %d exceeds NumBits %d", bitOffset, c.NumBits)
	}

	return packed, nil
}

// Unpack is the inverse of Pack: it writes the low bits of packed
// back into the tagged fields of the struct pointed to by x, in
// declaration order. The teacher's bitfield package only ever went
// one direction (Pack); Aurora adds the round trip, which this
// package's tests exercise. No kernel code path calls Unpack.
func Unpack(x interface{}, packed uint64) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack expected pointer to struct")
	}
	v = v.Elem()
	t := v.Type()

	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		mask := uint64(1)<<bits - 1
		fieldBits := (packed >> bitOffset) & mask
		bitOffset += bits

		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(fieldBits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(fieldBits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(fieldBits))
		default:
			return fmt.Errorf("bitfield: unsupported field type %v for field %s", fv.Kind(), field.Name)
		}
	}
	return nil
}
