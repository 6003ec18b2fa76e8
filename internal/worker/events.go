package worker

import "time"

// IndexRebuiltEvent is published on config.TopicIndexRebuilt after an index
// generation has been persisted.
type IndexRebuiltEvent struct {
	Generation    string    `json:"generation"`
	Sections      int       `json:"sections"`
	Chunks        int       `json:"chunks"`
	BuiltAt       time.Time `json:"built_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
