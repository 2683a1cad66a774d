package stream

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	f := testJPEG("abc")
	want := concat([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n"), f, []byte("\r\n"))
	if got := Encode(f); !bytes.Equal(got, want) {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	frames := []Frame{
		testJPEG("one"),
		realJPEG(t, 40),
		testJPEG("\r\n\r\nheaders-looking\r\n"),
		testJPEG(""),
	}

	var body bytes.Buffer
	for _, f := range frames {
		if _, err := WritePart(&body, f); err != nil {
			t.Fatalf("WritePart: %v", err)
		}
	}
	body.WriteString("--" + Boundary + "--\r\n")

	mediaType, params, err := mime.ParseMediaType(ContentType)
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	if mediaType != "multipart/x-mixed-replace" || params["boundary"] != Boundary {
		t.Fatalf("unexpected content type %q %v", mediaType, params)
	}

	mr := multipart.NewReader(&body, params["boundary"])
	for i, want := range frames {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part %d: content type %q", i, ct)
		}
		got, err := io.ReadAll(part)
		if err != nil {
			t.Fatalf("part %d: read: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("part %d: got %q, want %q", i, got, want)
		}
	}
	if _, err := mr.NextPart(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after last part, got %v", err)
	}
}
