// Package uploads stores documents in object storage and keeps an optional
// registry of what was uploaded.
package uploads

import "time"

// Record describes one stored upload.
type Record struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	RequestID    string    `json:"request_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// File is an upload as received from a client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
