package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/leafdoctor/internal/common"
	"github.com/jo-hoe/leafdoctor/internal/image"
)

var (
	// ErrUnsupportedType is returned for uploads that are not png or jpeg.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrTooLarge is returned when a part exceeds the configured limit.
	ErrTooLarge = errors.New("image too large")
)

var allowedImageMimes = map[string]struct{}{
	common.MimeImagePNG:  {},
	common.MimeImageJPEG: {},
	common.MimeImageJPG:  {},
}

// Reader loads uploaded image parts into memory. Nothing is written to disk.
type Reader struct {
	maxBytes int64
}

// NewReader creates a reader that refuses parts larger than maxBytes.
func NewReader(maxBytes int64) *Reader {
	return &Reader{maxBytes: maxBytes}
}

// MaxBytes is the per-part limit; zero means unlimited.
func (u *Reader) MaxBytes() int64 { return u.maxBytes }

// ReadImage validates the reported content type of an uploaded file and returns its bytes.
func (u *Reader) ReadImage(fileHeader *multipart.FileHeader) (*image.Uploaded, error) {
	if fileHeader == nil {
		return nil, fmt.Errorf("no file provided")
	}
	mimeType := ResolveMimeType(fileHeader.Header.Get(common.HeaderContentType), fileHeader.Filename)
	if !IsAllowedImageMime(mimeType) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mimeType)
	}
	data, err := u.readAll(fileHeader)
	if err != nil {
		return nil, err
	}
	return &image.Uploaded{Data: data, MimeType: mimeType}, nil
}

// ReadCapture returns the raw bytes of a camera capture part.
func (u *Reader) ReadCapture(fileHeader *multipart.FileHeader) ([]byte, error) {
	if fileHeader == nil {
		return nil, nil
	}
	return u.readAll(fileHeader)
}

func (u *Reader) readAll(fileHeader *multipart.FileHeader) ([]byte, error) {
	if u.maxBytes > 0 && fileHeader.Size > u.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, fileHeader.Size)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	var r io.Reader = src
	if u.maxBytes > 0 {
		r = io.LimitReader(src, u.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if u.maxBytes > 0 && int64(len(data)) > u.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, u.maxBytes)
	}
	return data, nil
}

// ResolveMimeType returns the reported content type, or a guess from the file
// extension when the client sent none or application/octet-stream. image/jpg
// is reported as image/jpeg.
func ResolveMimeType(reported, filename string) string {
	mt := strings.TrimSpace(reported)
	if mt == "" || strings.EqualFold(mt, common.ContentTypeOctet) {
		mt = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}
	// image/jpg is a common client alias; model APIs only know image/jpeg.
	if strings.EqualFold(mt, common.MimeImageJPG) {
		return common.MimeImageJPEG
	}
	return mt
}

// IsAllowedImageMime reports whether mimeType is one of the accepted image types.
func IsAllowedImageMime(mimeType string) bool {
	_, ok := allowedImageMimes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}
