package core

import (
	"strings"
	"testing"
)

func TestContentID(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{name: "pack id", content: []byte{0x01, 0x02, 0x03}},
		{name: "empty", content: nil},
		{name: "long content", content: []byte(strings.Repeat("sticker", 64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := ContentID(tt.content)
			id2 := ContentID(tt.content)
			if id1 != id2 {
				t.Errorf("ContentID() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}

	if ContentID([]byte("a")) == ContentID([]byte("b")) {
		t.Error("ContentID() produced the same ID for different content")
	}
}

func TestNewUniqueID(t *testing.T) {
	id1 := NewUniqueID()
	id2 := NewUniqueID()
	if id1 == id2 {
		t.Fatalf("NewUniqueID() returned duplicate %q", id1)
	}
	if id1 != strings.ToUpper(id1) {
		t.Errorf("NewUniqueID() = %q, want uppercase", id1)
	}
	if len(id1) != 36 {
		t.Errorf("NewUniqueID() length = %d, want 36", len(id1))
	}
}

func TestJobStatusString(t *testing.T) {
	if got := JobStatusReady.String(); got != "ready" {
		t.Errorf("JobStatusReady.String() = %q", got)
	}
	if got := JobStatus(42).String(); got != "unknown" {
		t.Errorf("JobStatus(42).String() = %q", got)
	}
}
