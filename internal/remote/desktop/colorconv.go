package desktop

// bgraToRGBA swizzles BGRA pixel data into an RGBA destination. src and dst
// must each hold at least pixels*4 bytes. GDI bitmaps are BGRA; image/jpeg
// wants RGBA, so every captured frame goes through here once.
//
// Processes 4 pixels per iteration to reduce loop overhead.
func bgraToRGBA(src, dst []byte, pixels int) {
	n := pixels * 4
	if len(src) < n || len(dst) < n {
		return
	}
	src = src[:n]
	dst = dst[:n]

	p4 := n &^ 15 // round down to multiple of 4 pixels
	i := 0
	for ; i < p4; i += 16 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], 0xFF
		dst[i+4], dst[i+5], dst[i+6], dst[i+7] = src[i+6], src[i+5], src[i+4], 0xFF
		dst[i+8], dst[i+9], dst[i+10], dst[i+11] = src[i+10], src[i+9], src[i+8], 0xFF
		dst[i+12], dst[i+13], dst[i+14], dst[i+15] = src[i+14], src[i+13], src[i+12], 0xFF
	}
	for ; i < n; i += 4 {
		dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], 0xFF
	}
}
