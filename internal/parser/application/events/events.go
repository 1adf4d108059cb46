package events

import "time"

// CarrierLineExtracted is published once per carrier file row. Position is
// the 0-based row index within the batch; the terminal flag is set only on
// the last row.
type CarrierLineExtracted struct {
	CorrelationID string            `json:"correlation_id"`
	Fields        map[string]string `json:"fields"`
	Position      int               `json:"position"`
	IsTerminal    bool              `json:"is_terminal"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
