package lapse

import (
	"sort"
	"time"
)

// SessionEpoch identifies one uninterrupted capture run inside a recording.
// It is minted once when capture starts or resumes and shared by every chunk
// and snapshot produced during that run.
type SessionEpoch string

// Timelapse is an in-progress or finished recording kept on this device.
// ID is assigned locally and is unrelated to the server-side draft ID.
type Timelapse struct {
	ID          int64
	Name        string
	Description string
	StartedAt   time.Time
	Chunks      []*Chunk
	IsActive    bool
}

// Epochs returns the distinct epochs of the recording in order of first appearance.
func (t *Timelapse) Epochs() []SessionEpoch {
	seen := make(map[SessionEpoch]bool)
	var epochs []SessionEpoch
	for _, c := range t.Chunks {
		if !seen[c.Epoch] {
			seen[c.Epoch] = true
			epochs = append(epochs, c.Epoch)
		}
	}
	return epochs
}

// Chunk is a slice of encoded media flushed by the capture pipeline.
// Its internal media timeline starts at an arbitrary offset, so only
// CreatedAt and Epoch are meaningful for ordering across chunks.
type Chunk struct {
	ID          int64
	TimelapseID int64
	Data        []byte
	CreatedAt   time.Time
	Epoch       SessionEpoch
}

// Snapshot marks the instant one output frame was captured.
type Snapshot struct {
	ID        int64
	CreatedAt time.Time
	Epoch     SessionEpoch
}

// FrameIndex pairs a snapshot with its rank among all snapshots.
type FrameIndex struct {
	Snapshot *Snapshot
	Index    int
}

// IndexFrames ranks snapshots by creation time, ascending, across all epochs.
// Snapshots with equal timestamps are ordered by ID.
func IndexFrames(snapshots []*Snapshot) []FrameIndex {
	sorted := make([]*Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	indices := make([]FrameIndex, len(sorted))
	for i, s := range sorted {
		indices[i] = FrameIndex{Snapshot: s, Index: i}
	}
	return indices
}

// Device binds this installation to a device record known to the server.
// The passkey never leaves the device in cleartext.
type Device struct {
	ID         string
	Passkey    string
	ThisDevice bool
}
