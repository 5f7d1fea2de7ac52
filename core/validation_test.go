package core

import (
	"errors"
	"testing"
)

func TestValidateThread(t *testing.T) {
	tests := []struct {
		name    string
		thread  *Thread
		wantErr error
	}{
		{
			name:    "valid contact thread",
			thread:  &Thread{UniqueID: "T1", Kind: ThreadKindContact},
			wantErr: nil,
		},
		{
			name:    "valid group thread",
			thread:  &Thread{UniqueID: "T2", Kind: ThreadKindGroup, GroupID: []byte{1}},
			wantErr: nil,
		},
		{
			name:    "nil thread",
			thread:  nil,
			wantErr: ErrInvalidThread,
		},
		{
			name:    "missing unique id",
			thread:  &Thread{Kind: ThreadKindContact},
			wantErr: ErrEmptyUniqueID,
		},
		{
			name:    "unknown kind",
			thread:  &Thread{UniqueID: "T3"},
			wantErr: ErrInvalidThread,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateThread(tt.thread)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateThread() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateThread() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateInteraction(t *testing.T) {
	tests := []struct {
		name        string
		interaction *Interaction
		wantErr     error
	}{
		{
			name:        "valid interaction",
			interaction: &Interaction{UniqueID: "I1", ThreadUniqueID: "T1"},
		},
		{
			name:        "missing thread",
			interaction: &Interaction{UniqueID: "I1"},
			wantErr:     ErrEmptyThreadID,
		},
		{
			name:        "missing unique id",
			interaction: &Interaction{ThreadUniqueID: "T1"},
			wantErr:     ErrEmptyUniqueID,
		},
		{
			name:        "nil interaction",
			interaction: nil,
			wantErr:     ErrInvalidInteraction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInteraction(tt.interaction)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateInteraction() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateInteraction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJobRecord(t *testing.T) {
	tests := []struct {
		name    string
		job     *JobRecord
		wantErr error
	}{
		{
			name: "valid decrypt job",
			job:  &JobRecord{UniqueID: "J1", Label: MessageDecryptJobLabel, Kind: JobKindMessageDecrypt},
		},
		{
			name:    "missing label",
			job:     &JobRecord{UniqueID: "J1", Kind: JobKindMessageDecrypt},
			wantErr: ErrEmptyLabel,
		},
		{
			name:    "unknown kind",
			job:     &JobRecord{UniqueID: "J1", Label: "x"},
			wantErr: ErrInvalidJobKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobRecord(tt.job)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateJobRecord() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateJobRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
