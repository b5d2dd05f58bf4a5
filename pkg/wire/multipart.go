package wire

import (
	"bytes"
	"errors"
)

// ErrInvalidMultipart covers every way a multipart/form-data body can
// fail to match the expected chunk grammar: missing boundary, missing
// Content-Disposition, an unrecognized field name, or a required field
// never supplied.
var ErrInvalidMultipart = errors.New("wire: invalid multipart/form-data body")

// FieldSpec declares one expected form field: its name, whether it may
// be absent, and which upload content types (if any) it accepts.
type FieldSpec struct {
	Name                 string
	Optional             bool
	AcceptedContentTypes UploadContentType
}

// UploadContentType is a bitmask of sniffed upload content types a form
// field is willing to accept.
type UploadContentType int

const (
	UploadContentTypeNone UploadContentType = 0
	UploadContentTypePNG  UploadContentType = 1 << iota
	UploadContentTypeJPEG
)

// Field is one parsed form-data field: its raw value bytes (a slice into
// the request body buffer, never copied) and, for file fields, the
// sniffed content type declared by the chunk's own Content-Type header.
type Field struct {
	Value       []byte
	ContentType UploadContentType
	Present     bool
}

const (
	contentDispositionPrefix = "Content-Disposition: form-data;"
	nameKeyPrefix            = "name=\""
	contentTypePrefix        = "Content-Type: "
	crlf                     = "\r\n"
)

// ParseMultipartFormData parses a multipart/form-data body built from
// boundary-delimited chunks, matching the order and quoting the
// reference parser accepts (not full RFC 2046 multipart — no quoted
// boundaries, no nested parts, no transfer encodings). boundary carries
// its leading "--" (as Request.Boundary does), and body must end with
// boundary + "--\r\n", the closing delimiter.
//
// The returned map is keyed by FieldSpec.Name; specs not present in body
// are absent from the map unless Optional is false, in which case
// ErrInvalidMultipart is returned.
func ParseMultipartFormData(body []byte, boundary string, specs []FieldSpec) (map[string]Field, error) {
	if len(body) < 50 {
		return nil, ErrInvalidMultipart
	}
	if !bytes.Equal(body[len(body)-4:], []byte("--\r\n")) {
		return nil, ErrInvalidMultipart
	}
	lastByte := len(body) - 4

	fields := make(map[string]Field, len(specs))

	pos := indexFrom(body, 0, lastByte, boundary)
	if pos < 0 {
		return nil, ErrInvalidMultipart
	}
	pos += len(boundary)

	pos = indexFrom(body, pos, lastByte, crlf)
	if pos < 0 {
		return nil, ErrInvalidMultipart
	}
	pos += len(crlf)

	for {
		next, field, name, err := parseChunk(body, pos, lastByte, boundary, specs)
		if err != nil {
			return nil, err
		}
		if name != "" {
			fields[name] = field
		}

		chunkValueEnd := next.valueEnd
		if chunkValueEnd+2+len(boundary) >= lastByte {
			break
		}
		pos = next.nextChunkStart
	}

	for _, spec := range specs {
		f, ok := fields[spec.Name]
		if (!ok || !f.Present) && !spec.Optional {
			return nil, ErrInvalidMultipart
		}
	}

	return fields, nil
}

type chunkResult struct {
	valueEnd       int
	nextChunkStart int
}

func parseChunk(body []byte, pos, lastByte int, boundary string, specs []FieldSpec) (chunkResult, Field, string, error) {
	pos = indexFrom(body, pos, lastByte, contentDispositionPrefix)
	if pos < 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	pos += len(contentDispositionPrefix)

	for pos < lastByte && body[pos] == ' ' {
		pos++
	}

	pos = indexFrom(body, pos, lastByte, nameKeyPrefix)
	if pos < 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	pos += len(nameKeyPrefix)

	nameStart := pos
	lineEnd := indexFrom(body, pos, lastByte, crlf)
	if lineEnd < 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	nameEnd := nameStart
	for nameEnd < lineEnd {
		nameEnd++
		if nameEnd < lineEnd && !isAlnumByte(body[nameEnd]) {
			break
		}
	}
	// The scan above stops at the first non-alphanumeric byte, so a name
	// containing '_' (thread_id) is truncated to its alphanumeric
	// prefix. Matching replicates that by comparing only that prefix
	// against each candidate spec, the same way the reference parser's
	// strncmp(name, key, namelen) does.
	name := string(body[nameStart:nameEnd])

	var spec *FieldSpec
	var specName string
	for i := range specs {
		if len(specs[i].Name) >= len(name) && specs[i].Name[:len(name)] == name {
			spec = &specs[i]
			specName = specs[i].Name
			break
		}
	}
	if spec == nil {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	name = specName

	pos = lineEnd + 2

	boundaryPos := indexFrom(body, pos, lastByte, boundary)
	if boundaryPos < 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	valueEnd := boundaryPos - 2

	var contentType UploadContentType
	ctPos := indexFrom(body, pos, boundaryPos, contentTypePrefix)
	if ctPos == pos {
		ctPos += len(contentTypePrefix)

		mimeStart := ctPos
		mimeEnd := mimeStart
		for mimeEnd < boundaryPos {
			mimeEnd++
			if mimeEnd < boundaryPos && !isMimeByte(body[mimeEnd]) {
				break
			}
		}
		mimeType := string(body[mimeStart:mimeEnd])

		switch mimeType {
		case "image/png":
			if spec.AcceptedContentTypes&UploadContentTypePNG != 0 {
				contentType = UploadContentTypePNG
			}
		case "image/jpeg":
			if spec.AcceptedContentTypes&UploadContentTypeJPEG != 0 {
				contentType = UploadContentTypeJPEG
			}
		}

		nl := indexFrom(body, mimeEnd, lastByte, crlf)
		if nl < 0 {
			return chunkResult{}, Field{}, "", ErrInvalidMultipart
		}
		pos = nl + 2
	} else if ctPos >= 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}

	pos = indexFrom(body, pos, lastByte, crlf)
	if pos < 0 {
		return chunkResult{}, Field{}, "", ErrInvalidMultipart
	}
	pos += 2
	valueStart := pos

	var field Field
	if valueStart < valueEnd && (spec.AcceptedContentTypes == UploadContentTypeNone || contentType != UploadContentTypeNone) {
		field = Field{Value: body[valueStart:valueEnd], ContentType: contentType, Present: true}
	}

	return chunkResult{valueEnd: valueEnd, nextChunkStart: valueEnd + 2}, field, name, nil
}

func indexFrom(haystack []byte, from, to int, needle string) int {
	if from < 0 || from > to || to > len(haystack) {
		return -1
	}
	idx := bytes.Index(haystack[from:to], []byte(needle))
	if idx < 0 {
		return -1
	}
	return from + idx
}

func isAlnumByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isMimeByte(c byte) bool {
	return isAlnumByte(c) || c == '/' || c == '-'
}
