package types

import "time"

// Epoch is one published snapshot boundary. Exactly one Epoch is "current"
// at a time, tracked by RepoState.CurrentEpochID.
type Epoch struct {
	ID          EpochID   `json:"epoch_id"`
	PublishedAt time.Time `json:"published_at"`
	FilesIndexed int      `json:"files_indexed"`
	CommitHash  *string   `json:"commit_hash,omitempty"`
}

// RepoState is the singleton row tracking which epoch is current.
type RepoState struct {
	CurrentEpochID EpochID `json:"current_epoch_id"`
}
