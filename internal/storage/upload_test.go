package storage

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"
)

func makeMultipartFile(t *testing.T, filename string, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://example/upload", &b)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(int64(b.Len()) + 1024); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	fhs := req.MultipartForm.File["file"]
	if len(fhs) == 0 {
		t.Fatalf("no fileheaders parsed")
	}
	if contentType != "" {
		fhs[0].Header.Set("Content-Type", contentType)
	}
	return fhs[0]
}

func TestReader_ReadImage_PNG(t *testing.T) {
	content := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	fh := makeMultipartFile(t, "image.png", "image/png", content)

	up, err := NewReader(10 * 1024 * 1024).ReadImage(fh)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if up.MimeType != "image/png" {
		t.Fatalf("mime = %q", up.MimeType)
	}
	if !bytes.Equal(up.Data, content) {
		t.Fatalf("data = %v", up.Data)
	}
}

func TestReader_ReadImage_JPEG_ByExtension(t *testing.T) {
	// CreateFormFile reports application/octet-stream; the extension decides.
	fh := makeMultipartFile(t, "photo.jpg", "", []byte("jpgdata"))

	up, err := NewReader(1024).ReadImage(fh)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if up.MimeType != "image/jpeg" {
		t.Fatalf("jpeg mime expected, got %q", up.MimeType)
	}
}

func TestReader_ReadImage_JPGAliasBecomesJPEG(t *testing.T) {
	fh := makeMultipartFile(t, "leaf.jpg", "image/jpg", []byte("jpgdata"))

	up, err := NewReader(1024).ReadImage(fh)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if up.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", up.MimeType)
	}
}

func TestReader_ReadImage_RejectsUnsupported(t *testing.T) {
	fh := makeMultipartFile(t, "doc.txt", "text/plain", []byte("text"))
	if _, err := NewReader(1024).ReadImage(fh); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestReader_RespectsMaxBytes(t *testing.T) {
	large := bytes.Repeat([]byte("x"), 4096)
	fh := makeMultipartFile(t, "big.png", "image/png", large)

	if _, err := NewReader(1024).ReadImage(fh); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := NewReader(1024).ReadCapture(fh); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for capture, got %v", err)
	}
	if got := NewReader(1024).MaxBytes(); got != 1024 {
		t.Fatalf("MaxBytes = %d", got)
	}
}

func TestReader_ReadCapture(t *testing.T) {
	fh := makeMultipartFile(t, "blob", "", []byte("camera"))
	data, err := NewReader(0).ReadCapture(fh)
	if err != nil {
		t.Fatalf("ReadCapture: %v", err)
	}
	if string(data) != "camera" {
		t.Fatalf("data = %q", data)
	}
	if data, err := NewReader(0).ReadCapture(nil); err != nil || data != nil {
		t.Fatalf("nil header: %v %v", data, err)
	}
}

func TestResolveMimeType(t *testing.T) {
	cases := []struct {
		reported, filename, want string
	}{
		{"image/png", "x.jpg", "image/png"},
		{"image/jpeg; charset=binary", "x", "image/jpeg"},
		{"application/octet-stream", "leaf.PNG", "image/png"},
		{"", "leaf.jpeg", "image/jpeg"},
		{"image/jpg", "leaf.jpg", "image/jpeg"},
		{"IMAGE/JPG; q=1", "leaf", "image/jpeg"},
	}
	for _, c := range cases {
		if got := ResolveMimeType(c.reported, c.filename); got != c.want {
			t.Fatalf("ResolveMimeType(%q, %q) = %q, want %q", c.reported, c.filename, got, c.want)
		}
	}
	if !IsAllowedImageMime(" IMAGE/JPG ") || IsAllowedImageMime("image/gif") {
		t.Fatalf("IsAllowedImageMime mismatch")
	}
}
