package media

import (
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is used when neither the recorder nor content sniffing
// can name the container.
const DefaultMIMEType = "video/webm"

// Blob is an immutable in-memory capture of one answer.
type Blob struct {
	data     []byte
	mimeType string
}

// NewBlob copies data into a new Blob. When mimeType is empty the type is
// detected from the content.
func NewBlob(data []byte, mimeType string) Blob {
	buf := make([]byte, len(data))
	copy(buf, data)

	if mimeType == "" {
		mimeType = detectMIMEType(buf)
	}
	return Blob{data: buf, mimeType: mimeType}
}

// Bytes returns a copy of the blob contents.
func (b Blob) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Size returns the blob length in bytes.
func (b Blob) Size() int {
	return len(b.data)
}

// MIMEType returns the container type of the blob.
func (b Blob) MIMEType() string {
	return b.mimeType
}

// Extension returns the file extension matching the blob type, with the dot.
func (b Blob) Extension() string {
	m := mimetype.Lookup(b.mimeType)
	if m == nil || m.Extension() == "" {
		return ".webm"
	}
	return m.Extension()
}

func detectMIMEType(data []byte) string {
	if len(data) == 0 {
		return DefaultMIMEType
	}
	m := mimetype.Detect(data)
	if m.Is("application/octet-stream") {
		return DefaultMIMEType
	}
	return m.String()
}
