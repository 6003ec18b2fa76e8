package config

const (
	// TopicIndexRebuilt is the NSQ topic announcing a newly persisted index generation.
	TopicIndexRebuilt = "index.rebuilt"
)
