package fcgi

import (
	"bytes"
	"testing"
)

func TestBeginRequestWireFormat(t *testing.T) {
	// Header and content bytes for a responder begin-request with
	// request id 1 and keep-connection off.
	want := []byte{
		1, 1, 0, 1, 0, 8, 0, 0, // version, type, requestId, contentLength, padding, reserved
		0, 1, 0, 0, 0, 0, 0, 0, // role, flags, reserved
	}

	got := BuildBeginRequest(1).Encode()
	if !bytes.Equal(got, want) {
		t.Errorf("begin-request bytes = %v, want %v", got, want)
	}
}

func TestRecordEncodePadding(t *testing.T) {
	for contentLen := 0; contentLen <= 32; contentLen++ {
		rec := Record{Type: TypeParams, RequestID: 1, Content: make([]byte, contentLen)}
		encoded := rec.Encode()

		hdr, err := decodeHeader(encoded)
		if err != nil {
			t.Fatalf("decodeHeader failed for content length %d: %v", contentLen, err)
		}

		if int(hdr.ContentLen) != contentLen {
			t.Errorf("content length %d: header says %d", contentLen, hdr.ContentLen)
		}
		if hdr.PaddingLen > 7 {
			t.Errorf("content length %d: padding %d out of range", contentLen, hdr.PaddingLen)
		}
		if (int(hdr.ContentLen)+int(hdr.PaddingLen))%8 != 0 {
			t.Errorf("content length %d: content+padding not 8-byte aligned (padding %d)", contentLen, hdr.PaddingLen)
		}
		if len(encoded) != headerLen+contentLen+int(hdr.PaddingLen) {
			t.Errorf("content length %d: encoded %d bytes, want %d", contentLen, len(encoded), headerLen+contentLen+int(hdr.PaddingLen))
		}

		// Padding bytes must be zero-filled.
		for _, b := range encoded[headerLen+contentLen:] {
			if b != 0 {
				t.Errorf("content length %d: non-zero padding byte", contentLen)
				break
			}
		}
	}
}

func TestDecodeHeaderRoundTrip(t *testing.T) {
	rec := Record{Type: TypeStdout, RequestID: 513, Content: []byte("hello")}
	hdr, err := decodeHeader(rec.Encode())
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}

	if hdr.Version != Version {
		t.Errorf("version = %d, want %d", hdr.Version, Version)
	}
	if hdr.Type != TypeStdout {
		t.Errorf("type = %v, want %v", hdr.Type, TypeStdout)
	}
	if hdr.RequestID != 513 {
		t.Errorf("request id = %d, want 513", hdr.RequestID)
	}
	if hdr.ContentLen != 5 {
		t.Errorf("content length = %d, want 5", hdr.ContentLen)
	}
	if hdr.PaddingLen != 3 {
		t.Errorf("padding = %d, want 3", hdr.PaddingLen)
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	if _, err := decodeHeader([]byte{1, 6, 0}); err == nil {
		t.Error("expected error for short header buffer")
	}
}

func TestRecordTypeString(t *testing.T) {
	if got := TypeStderr.String(); got != "FCGI_STDERR" {
		t.Errorf("TypeStderr.String() = %q", got)
	}
	if got := RecordType(11).String(); got != "FCGI_UNKNOWN(11)" {
		t.Errorf("unknown type String() = %q", got)
	}
}
