package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "--AaB03x0123456789012345678901234"

func buildMultipartBody(parts ...string) []byte {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(testBoundary)
		b.WriteString("\r\n")
		b.WriteString(p)
	}
	b.WriteString(testBoundary)
	b.WriteString("--\r\n")
	return []byte(b.String())
}

func TestParseMultipartFormDataSimpleFields(t *testing.T) {
	body := buildMultipartBody(
		"Content-Disposition: form-data; name=\"comment\"\r\n\r\nhello world\r\n",
		"Content-Disposition: form-data; name=\"thread_id\"\r\n\r\n123\r\n",
	)

	specs := []FieldSpec{
		{Name: "comment"},
		{Name: "thread_id", Optional: true},
		{Name: "name", Optional: true},
		{Name: "subject", Optional: true},
		{Name: "file", Optional: true, AcceptedContentTypes: UploadContentTypePNG | UploadContentTypeJPEG},
	}

	fields, err := ParseMultipartFormData(body, testBoundary, specs)
	require.NoError(t, err)
	require.True(t, fields["comment"].Present)
	assert.Equal(t, "hello world", string(fields["comment"].Value))
	require.True(t, fields["thread_id"].Present)
	assert.Equal(t, "123", string(fields["thread_id"].Value))
}

func TestParseMultipartFormDataMissingRequiredField(t *testing.T) {
	body := buildMultipartBody(
		"Content-Disposition: form-data; name=\"thread_id\"\r\n\r\n123\r\n",
	)
	specs := []FieldSpec{{Name: "comment"}, {Name: "thread_id", Optional: true}}

	_, err := ParseMultipartFormData(body, testBoundary, specs)
	assert.ErrorIs(t, err, ErrInvalidMultipart)
}

func TestParseMultipartFormDataFileFieldWithContentType(t *testing.T) {
	png := "\x89PNG\r\n\x1a\nrestofimagebytesrestofimagebytesrestofimagebytes"
	body := buildMultipartBody(
		"Content-Disposition: form-data; name=\"comment\"\r\n\r\nhi\r\n",
		"Content-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\n" + png + "\r\n",
	)
	specs := []FieldSpec{
		{Name: "comment"},
		{Name: "file", Optional: true, AcceptedContentTypes: UploadContentTypePNG | UploadContentTypeJPEG},
	}

	fields, err := ParseMultipartFormData(body, testBoundary, specs)
	require.NoError(t, err)
	require.True(t, fields["file"].Present)
	assert.Equal(t, UploadContentTypePNG, fields["file"].ContentType)
}

func TestParseMultipartFormDataRejectsMissingTerminator(t *testing.T) {
	body := []byte(testBoundary + "\r\nContent-Disposition: form-data; name=\"comment\"\r\n\r\nhi\r\n")
	specs := []FieldSpec{{Name: "comment"}}
	_, err := ParseMultipartFormData(body, testBoundary, specs)
	assert.ErrorIs(t, err, ErrInvalidMultipart)
}

func TestParseMultipartFormDataTooShort(t *testing.T) {
	_, err := ParseMultipartFormData([]byte("short"), testBoundary, nil)
	assert.ErrorIs(t, err, ErrInvalidMultipart)
}
