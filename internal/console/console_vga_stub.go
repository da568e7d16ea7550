//go:build !vgatext

package console

// No VGA text buffer on this build; serial is the only sink. Real
// implementation lives in console_vga_text.go (-tags vgatext).
func init() {
	vgaWrite = func([]byte) {}
}
