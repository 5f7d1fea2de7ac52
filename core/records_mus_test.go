package core

import (
	"reflect"
	"testing"
	"time"
)

func TestThreadMUS(t *testing.T) {
	thread := Thread{
		UniqueID:              "T1",
		RowID:                 7,
		Kind:                  ThreadKindGroup,
		GroupID:               []byte{0xc1, 0x11},
		Name:                  "Book Club",
		IsArchived:            true,
		ShouldBeVisible:       true,
		LastInteractionSortID: 99,
		CreatedAt:             time.UnixMicro(1_700_000_000_123_456).UTC(),
	}

	buf := make([]byte, ThreadMUS.Size(thread))
	n := ThreadMUS.Marshal(thread, buf)
	if n != len(buf) {
		t.Fatalf("Marshal wrote %d bytes, Size reported %d", n, len(buf))
	}

	got, read, err := ThreadMUS.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if read != n {
		t.Errorf("Unmarshal read %d bytes, want %d", read, n)
	}
	if !reflect.DeepEqual(got, thread) {
		t.Errorf("Unmarshal = %+v, want %+v", got, thread)
	}
}

func TestJobRecordMUS_ZeroValues(t *testing.T) {
	job := JobRecord{UniqueID: "J1", Kind: JobKindSessionReset, Label: SessionResetJobLabel, Status: JobStatusReady}

	buf := make([]byte, JobRecordMUS.Size(job))
	JobRecordMUS.Marshal(job, buf)
	got, _, err := JobRecordMUS.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, job) {
		t.Errorf("Unmarshal = %+v, want %+v", got, job)
	}
}

func TestMessageDecryptJobMUS_ZeroTime(t *testing.T) {
	job := MessageDecryptJob{UniqueID: "D1", EnvelopeData: []byte("envelope")}

	buf := make([]byte, MessageDecryptJobMUS.Size(job))
	MessageDecryptJobMUS.Marshal(job, buf)
	got, _, err := MessageDecryptJobMUS.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !got.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", got.CreatedAt)
	}
	if string(got.EnvelopeData) != "envelope" {
		t.Errorf("EnvelopeData = %q", got.EnvelopeData)
	}
}

func TestInteractionMUS_Truncated(t *testing.T) {
	interaction := Interaction{UniqueID: "I1", ThreadUniqueID: "T1", Body: "hello"}
	buf := make([]byte, InteractionMUS.Size(interaction))
	InteractionMUS.Marshal(interaction, buf)

	if _, _, err := InteractionMUS.Unmarshal(buf[:len(buf)-3]); err == nil {
		t.Error("Unmarshal of truncated data succeeded, want error")
	}
}
