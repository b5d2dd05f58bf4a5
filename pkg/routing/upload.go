package routing

import "github.com/pressboard/pressboard/pkg/wire"

// fileSignature is a magic-number match with an optional don't-care
// mask: sig[i] must equal the uploaded byte unless mask[i] is set.
type fileSignature struct {
	sig  []byte
	mask []byte
}

func (s fileSignature) matches(buf []byte) bool {
	if len(buf) < len(s.sig) {
		return false
	}
	for i, want := range s.sig {
		if s.mask != nil && s.mask[i] != 0 {
			continue
		}
		if buf[i] != want {
			return false
		}
	}
	return true
}

var pngSignature = fileSignature{
	sig: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
}

// jpegSignatures includes one signature (E0) that is a strict prefix of
// another (the EXIF/JFIF APP0 variant); both are kept, matching the
// reference implementation's "one redundant signature" sniff table.
var jpegSignatures = []fileSignature{
	{sig: []byte{0xFF, 0xD8, 0xFF, 0xDB}},
	{sig: []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46, 0x00, 0x01}},
	{sig: []byte{0xFF, 0xD8, 0xFF, 0xEE}},
	{
		sig:  []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x00, 0x45, 0x78, 0x69, 0x66, 0x00, 0x00},
		mask: []byte{0, 0, 0, 0, 1, 1, 0, 0, 0, 0, 0, 0},
	},
	{sig: []byte{0xFF, 0xD8, 0xFF, 0xE0}},
}

const minUploadSize = 100

// sniffUpload confirms buf's magic bytes match one of the signatures
// accepted for declaredType, returning the concrete type detected.
// The declared Content-Type from the multipart chunk selects which
// signatures are checked; an upload is accepted only if its magic bytes
// match one of them, and a declared type of None is rejected.
func sniffUpload(buf []byte, declaredType wire.UploadContentType, maxSize int) wire.UploadContentType {
	if len(buf) < minUploadSize || len(buf) > maxSize {
		return wire.UploadContentTypeNone
	}

	switch declaredType {
	case wire.UploadContentTypePNG:
		if pngSignature.matches(buf) {
			return wire.UploadContentTypePNG
		}
	case wire.UploadContentTypeJPEG:
		for _, sig := range jpegSignatures {
			if sig.matches(buf) {
				return wire.UploadContentTypeJPEG
			}
		}
	}
	return wire.UploadContentTypeNone
}

func uploadExtension(uct wire.UploadContentType) string {
	switch uct {
	case wire.UploadContentTypePNG:
		return ".png"
	case wire.UploadContentTypeJPEG:
		return ".jpg"
	default:
		return ""
	}
}
