package fcgi

import (
	"strings"
	"testing"
)

func TestStatusParamsOrder(t *testing.T) {
	params := StatusParams("/status")

	want := []Param{
		{Name: "SCRIPT_NAME", Value: "/status"},
		{Name: "SCRIPT_FILENAME", Value: "/status"},
		{Name: "QUERY_STRING", Value: ""},
		{Name: "REQUEST_METHOD", Value: "GET"},
	}
	if len(params) != len(want) {
		t.Fatalf("got %d params, want %d", len(params), len(want))
	}
	for i := range want {
		if params[i] != want[i] {
			t.Errorf("param %d = %+v, want %+v", i, params[i], want[i])
		}
	}
}

func TestBuildParamsRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params []Param
	}{
		{
			name:   "status request",
			params: StatusParams("/fpm-status"),
		},
		{
			name: "long form value",
			params: []Param{
				{Name: "HTTP_COOKIE", Value: strings.Repeat("x", 300)},
			},
		},
		{
			name: "long form name and value",
			params: []Param{
				{Name: strings.Repeat("N", 128), Value: strings.Repeat("v", 128)},
			},
		},
		{
			name: "empty value",
			params: []Param{
				{Name: "QUERY_STRING", Value: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := BuildParams(1, tt.params)

			last := records[len(records)-1]
			if len(last.Content) != 0 {
				t.Fatalf("last record carries %d content bytes, want zero-length terminator", len(last.Content))
			}

			var stream []byte
			for _, rec := range records {
				if rec.Type != TypeParams {
					t.Fatalf("record type = %v, want %v", rec.Type, TypeParams)
				}
				stream = append(stream, rec.Content...)
			}

			decoded, err := ParseParams(stream)
			if err != nil {
				t.Fatalf("ParseParams: %v", err)
			}
			if len(decoded) != len(tt.params) {
				t.Fatalf("decoded %d params, want %d", len(decoded), len(tt.params))
			}
			for i := range tt.params {
				if decoded[i] != tt.params[i] {
					t.Errorf("param %d = %+v, want %+v", i, decoded[i], tt.params[i])
				}
			}
		})
	}
}

func TestBuildParamsChunking(t *testing.T) {
	// A value larger than one record's content capacity must be split
	// across multiple records, all of them 8-byte aligned except the last.
	params := []Param{
		{Name: "BIG", Value: strings.Repeat("z", 2*maxContentLen)},
	}

	records := BuildParams(7, params)
	if len(records) < 3 {
		t.Fatalf("got %d records, want at least two content records plus terminator", len(records))
	}

	for i, rec := range records[:len(records)-2] {
		if len(rec.Content)%8 != 0 {
			t.Errorf("record %d content length %d not 8-byte aligned", i, len(rec.Content))
		}
		if len(rec.Content) > maxContentLen {
			t.Errorf("record %d content length %d exceeds limit", i, len(rec.Content))
		}
	}

	var stream []byte
	for _, rec := range records {
		if rec.RequestID != 7 {
			t.Errorf("record request id = %d, want 7", rec.RequestID)
		}
		stream = append(stream, rec.Content...)
	}

	decoded, err := ParseParams(stream)
	if err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != params[0] {
		t.Errorf("round trip lost the chunked parameter")
	}
}

func TestParseParamsTruncated(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{name: "missing value length", content: []byte{3}},
		{name: "short long-form prefix", content: []byte{0x80, 0x00}},
		{name: "truncated pair data", content: []byte{5, 5, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseParams(tt.content); err == nil {
				t.Error("expected error for truncated stream")
			}
		})
	}
}
