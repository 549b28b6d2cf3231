package entity

// Stage is a step of a single work item's pass through the bridge.
type Stage string

const (
	StageFetched    Stage = "fetched"
	StageDownloaded Stage = "downloaded"
	StageSubmitted  Stage = "submitted"
	StageCompleted  Stage = "completed"
	StageScored     Stage = "scored"
	StageReported   Stage = "reported"
	StageCleaned    Stage = "cleaned"
)

// InferenceJob is one graph submission to the local engine. It is discarded
// once its outputs have been read.
type InferenceJob struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
	ItemID        string `json:"item_id"`
}

// RawOutputMap is the engine's recorded output: node id -> output field -> value.
type RawOutputMap map[string]map[string]any
