package tools

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

func Test_IsPrintable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"strips control chars", "hel\x00lo\x01", "hello"},
		{"keeps unicode letters", "héllo", "héllo"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPrintable(tt.in); got != tt.want {
				t.Errorf("IsPrintable(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func Test_IsPrintable_bytes(t *testing.T) {
	got := IsPrintable([]byte("ab\x00cd"))
	if got != "abcd" {
		t.Errorf("IsPrintable([]byte) = %q, want %q", got, "abcd")
	}
}

func Test_LogReadWriter_passesThroughData(t *testing.T) {
	var rw bytes.Buffer
	rw.WriteString("payload")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lrw := NewLogReadWriter(&rw, logger)

	if _, err := lrw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 32)
	n, err := lrw.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatal(err)
	}
	if string(buf[:n]) != "payload" {
		t.Fatalf("unexpected data: %q", buf[:n])
	}
}

func Test_LogReadWriter_nilLoggerIsSilent(t *testing.T) {
	var rw bytes.Buffer
	lrw := NewLogReadWriter(&rw, nil)

	if _, err := lrw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if rw.String() != "hello" {
		t.Fatalf("unexpected written data: %q", rw.String())
	}
}
