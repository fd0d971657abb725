package models

import (
	"io"
	"time"
)

// ImageUpload is an evidence photo received from the field app.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageLink is a time-limited URL for viewing a job card's evidence image.
// External URLs attached by reference are returned as-is with no expiry.
type ImageLink struct {
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// StoredFile is an opened upload ready to be streamed.
type StoredFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.ReadCloser
}
