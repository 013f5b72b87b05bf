package domain

// Instance is one relay process sharing the topic, as last reported to the
// instance registry.
type Instance struct {
	ID            string `json:"instanceId"`
	Version       string `json:"version"`
	ActiveStreams int    `json:"activeStreams"`
	Timestamp     int64  `json:"timestamp"`
}
