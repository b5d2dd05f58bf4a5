package routing

import (
	"bytes"
	"testing"

	"github.com/pressboard/pressboard/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func padded(sig []byte) []byte {
	buf := make([]byte, 120)
	copy(buf, sig)
	return buf
}

func TestSniffUploadPNG(t *testing.T) {
	buf := padded([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	got := sniffUpload(buf, wire.UploadContentTypePNG, 1<<20)
	assert.Equal(t, wire.UploadContentTypePNG, got)
}

func TestSniffUploadJPEGVariants(t *testing.T) {
	for _, sig := range jpegSignatures {
		buf := padded(sig.sig)
		got := sniffUpload(buf, wire.UploadContentTypeJPEG, 1<<20)
		assert.Equal(t, wire.UploadContentTypeJPEG, got)
	}
}

func TestSniffUploadRejectsMismatchedSignature(t *testing.T) {
	buf := padded([]byte("not an image"))
	assert.Equal(t, wire.UploadContentTypeNone, sniffUpload(buf, wire.UploadContentTypePNG, 1<<20))
}

func TestSniffUploadRejectsTooSmall(t *testing.T) {
	buf := bytes.Repeat([]byte{0x89}, 10)
	assert.Equal(t, wire.UploadContentTypeNone, sniffUpload(buf, wire.UploadContentTypePNG, 1<<20))
}

func TestSniffUploadRejectsOversize(t *testing.T) {
	buf := padded([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	assert.Equal(t, wire.UploadContentTypeNone, sniffUpload(buf, wire.UploadContentTypePNG, 50))
}

func TestGenFilenameHasExpectedShape(t *testing.T) {
	name := genFilename(".png")
	assert.Len(t, name, filenameHashLen+len(".png"))
	assert.Regexp(t, "^[A-Z]{20}\\.png$", name)
}
