package domain

import "time"

type CommitMode string

const (
	CommitModeAtomic  CommitMode = "atomic"
	CommitModePartial CommitMode = "partial"
)

func (m CommitMode) Valid() bool {
	return m == CommitModeAtomic || m == CommitModePartial
}

type CommitJobStatus string

const (
	CommitJobStatusQueued     CommitJobStatus = "queued"
	CommitJobStatusProcessing CommitJobStatus = "processing"
	CommitJobStatusDone       CommitJobStatus = "done"
	CommitJobStatusFailed     CommitJobStatus = "failed"
)

// RecordOutcome is what happened to one keyed record of a batch.
type RecordOutcome struct {
	Type   EntityType `json:"type"`
	Action string     `json:"action"`
	ID     ID         `json:"id,omitempty"`
}

// CommitResult summarises a committed batch. Failures is keyed like Records
// and only filled by partial commits.
type CommitResult struct {
	Mode     CommitMode               `json:"mode"`
	Records  map[string]RecordOutcome `json:"records"`
	Failures map[string]string        `json:"failures"`
}

type CommitJob struct {
	ID        string
	Status    CommitJobStatus
	Result    *CommitResult
	Error     *string
	UpdatedAt time.Time
}
