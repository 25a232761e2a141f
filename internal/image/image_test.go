package image

import (
	"bytes"
	"errors"
	"testing"
)

func TestNormalize_UploadedKeepsMimeAndBytes(t *testing.T) {
	cases := []struct {
		mime string
		data []byte
	}{
		{"image/png", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"image/jpeg", []byte("jpegdata")},
		{"image/jpg", []byte{0xff, 0xd8, 0xff}},
	}
	for _, c := range cases {
		rec, err := Normalize(Uploaded{Data: c.data, MimeType: c.mime})
		if err != nil {
			t.Fatalf("Normalize(%s): %v", c.mime, err)
		}
		if rec.MimeType() != c.mime {
			t.Fatalf("mime = %q, want %q", rec.MimeType(), c.mime)
		}
		if !bytes.Equal(rec.Bytes(), c.data) {
			t.Fatalf("bytes changed for %s", c.mime)
		}
	}
}

func TestNormalize_CapturedIsJPEG(t *testing.T) {
	data := []byte("not-really-a-jpeg")
	rec, err := Normalize(Captured{Data: data})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.MimeType() != "image/jpeg" {
		t.Fatalf("mime = %q", rec.MimeType())
	}
	if !bytes.Equal(rec.Bytes(), data) || rec.Len() != len(data) {
		t.Fatalf("bytes changed")
	}
}

func TestNormalize_MissingInput(t *testing.T) {
	for _, src := range []Source{nil, Uploaded{MimeType: "image/png"}, Captured{}} {
		if _, err := Normalize(src); !errors.Is(err, ErrMissingInput) {
			t.Fatalf("Normalize(%#v) err = %v, want ErrMissingInput", src, err)
		}
	}
}

func TestNormalize_UploadedWithoutMime(t *testing.T) {
	if _, err := Normalize(Uploaded{Data: []byte("x"), MimeType: "  "}); !errors.Is(err, ErrMissingMimeType) {
		t.Fatalf("err = %v, want ErrMissingMimeType", err)
	}
}

func TestSourceFrom(t *testing.T) {
	up := &Uploaded{Data: []byte("u"), MimeType: "image/png"}

	src, err := SourceFrom(up, nil)
	if err != nil {
		t.Fatalf("upload only: %v", err)
	}
	if _, ok := src.(Uploaded); !ok {
		t.Fatalf("expected Uploaded, got %T", src)
	}

	src, err = SourceFrom(nil, []byte("c"))
	if err != nil {
		t.Fatalf("capture only: %v", err)
	}
	if _, ok := src.(Captured); !ok {
		t.Fatalf("expected Captured, got %T", src)
	}

	if _, err := SourceFrom(up, []byte("c")); !errors.Is(err, ErrConflictingInput) {
		t.Fatalf("both: err = %v", err)
	}
	if _, err := SourceFrom(nil, nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("neither: err = %v", err)
	}
	if _, err := SourceFrom(&Uploaded{MimeType: "image/png"}, nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("empty upload: err = %v", err)
	}
}
