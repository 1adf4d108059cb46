package events

import "time"

// FileStored is published once per accepted carrier file. The correlation id
// minted here identifies the batch through the whole pipeline.
type FileStored struct {
	CorrelationID string            `json:"correlation_id"`
	Path          string            `json:"path"`
	Format        string            `json:"format"`
	Size          int64             `json:"size"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
