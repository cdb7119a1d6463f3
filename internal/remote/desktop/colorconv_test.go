package desktop

import "testing"

func TestBgraToRGBA(t *testing.T) {
	// Five pixels to exercise both the unrolled body and the tail.
	src := []byte{
		0x01, 0x02, 0x03, 0x00, // B G R A
		0x11, 0x12, 0x13, 0x00,
		0x21, 0x22, 0x23, 0x00,
		0x31, 0x32, 0x33, 0x00,
		0x41, 0x42, 0x43, 0x00,
	}
	dst := make([]byte, len(src))
	bgraToRGBA(src, dst, 5)

	want := []byte{
		0x03, 0x02, 0x01, 0xFF,
		0x13, 0x12, 0x11, 0xFF,
		0x23, 0x22, 0x21, 0xFF,
		0x33, 0x32, 0x31, 0xFF,
		0x43, 0x42, 0x41, 0xFF,
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, dst[i], want[i])
		}
	}
}

func TestBgraToRGBA_ShortBuffers(t *testing.T) {
	dst := make([]byte, 4)
	// Must not panic on undersized source.
	bgraToRGBA([]byte{1, 2}, dst, 1)
	if dst[3] != 0 {
		t.Fatal("short source mutated destination")
	}
}
