package tracker

import (
	"bytes"
	"strings"
	"testing"
	"unsafe"
)

func TestLedgerTracksAndUntracks(t *testing.T) {
	l := New()
	var x int64
	ptr := unsafe.Pointer(&x)

	l.TrackAllocation(ptr, 64, "main.go", 10, nil)
	if got := l.CurrentMemoryUsage(); got != 64 {
		t.Fatalf("CurrentMemoryUsage() = %d, want 64", got)
	}

	l.TrackDeallocation(ptr)
	if got := l.CurrentMemoryUsage(); got != 0 {
		t.Fatalf("CurrentMemoryUsage() = %d, want 0", got)
	}
}

func TestLedgerDoubleUntrackIsNoop(t *testing.T) {
	l := New()
	var x int64
	ptr := unsafe.Pointer(&x)
	l.TrackAllocation(ptr, 32, "main.go", 1, nil)
	l.TrackDeallocation(ptr)
	l.TrackDeallocation(ptr) // must not go negative
	if got := l.CurrentMemoryUsage(); got != 0 {
		t.Fatalf("CurrentMemoryUsage() = %d, want 0", got)
	}
}

func TestLedgerReportLeaks(t *testing.T) {
	l := New()
	var a, b int64
	l.TrackAllocation(unsafe.Pointer(&a), 128, "a.go", 5, nil)
	l.TrackAllocation(unsafe.Pointer(&b), 256, "b.go", 9, nil)

	var buf bytes.Buffer
	l.ReportLeaks(&buf)
	out := buf.String()
	if !strings.Contains(out, "a.go:5") || !strings.Contains(out, "b.go:9") {
		t.Fatalf("report missing an origin: %s", out)
	}
}
