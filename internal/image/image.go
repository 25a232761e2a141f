// Package image turns whichever input source the user chose into a single
// canonical record of bytes and MIME type.
package image

import (
	"errors"
	"strings"

	"github.com/jo-hoe/leafdoctor/internal/common"
)

var (
	// ErrMissingInput means neither an uploaded file nor a camera capture was supplied.
	ErrMissingInput = errors.New("no file uploaded or image captured")
	// ErrConflictingInput means both an uploaded file and a camera capture were supplied.
	ErrConflictingInput = errors.New("both an uploaded file and a captured image were supplied")
	// ErrMissingMimeType means an uploaded file carried no content type.
	ErrMissingMimeType = errors.New("uploaded file has no content type")
)

// Source is one of Uploaded or Captured.
type Source interface {
	isSource()
}

// Uploaded is a file chosen through the upload widget.
type Uploaded struct {
	Data     []byte
	MimeType string // as reported by the client
}

// Captured is a still taken with the camera widget. Camera captures are always JPEG.
type Captured struct {
	Data []byte
}

func (Uploaded) isSource() {}
func (Captured) isSource() {}

// Record is a fully populated image. The zero value is never handed out by Normalize.
type Record struct {
	mimeType string
	data     []byte
}

// MimeType returns the image content type.
func (r Record) MimeType() string { return r.mimeType }

// Bytes returns the raw payload. Callers must not modify it.
func (r Record) Bytes() []byte { return r.data }

// Len returns the payload size.
func (r Record) Len() int { return len(r.data) }

// SourceFrom picks the variant from two optional inputs. Exactly one must be present.
func SourceFrom(upload *Uploaded, captured []byte) (Source, error) {
	hasUpload := upload != nil && len(upload.Data) > 0
	hasCapture := len(captured) > 0
	switch {
	case hasUpload && hasCapture:
		return nil, ErrConflictingInput
	case hasUpload:
		return *upload, nil
	case hasCapture:
		return Captured{Data: captured}, nil
	}
	return nil, ErrMissingInput
}

// Normalize converts a source into a Record. Bytes are taken verbatim; the
// captured variant is labelled image/jpeg without inspecting its content.
func Normalize(src Source) (Record, error) {
	switch s := src.(type) {
	case Uploaded:
		if len(s.Data) == 0 {
			return Record{}, ErrMissingInput
		}
		mt := strings.TrimSpace(s.MimeType)
		if mt == "" {
			return Record{}, ErrMissingMimeType
		}
		return Record{mimeType: mt, data: s.Data}, nil
	case Captured:
		if len(s.Data) == 0 {
			return Record{}, ErrMissingInput
		}
		return Record{mimeType: common.MimeImageJPEG, data: s.Data}, nil
	}
	return Record{}, ErrMissingInput
}
