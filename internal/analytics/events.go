// Package analytics publishes search and quota usage events to Kafka.
// Tracking never blocks the request path: events are buffered and dropped
// when the buffer is full.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventQuota      EventType = "quota"
)

type SearchEvent struct {
	Type         EventType `json:"type"`
	RequestID    string    `json:"request_id,omitempty"`
	Identity     string    `json:"identity"`
	Tier         string    `json:"tier"`
	Jurisdiction string    `json:"jurisdiction"`
	Date         string    `json:"date"`
	Terms        []string  `json:"terms"`
	CodeNames    []string  `json:"code_names"`
	Returned     int       `json:"returned"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

type QuotaEvent struct {
	Type      EventType `json:"type"`
	Identity  string    `json:"identity"`
	Tier      string    `json:"tier"`
	Admitted  bool      `json:"admitted"`
	Reason    string    `json:"reason,omitempty"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Timestamp time.Time `json:"timestamp"`
}

// key partitions events by identity so one caller's events stay ordered.
func key(event any) string {
	switch e := event.(type) {
	case SearchEvent:
		return e.Identity
	case QuotaEvent:
		return e.Identity
	}
	return "analytics"
}
