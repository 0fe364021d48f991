package models

import "io"

// UploadInput describes one object write to the artifact store.
type UploadInput struct {
	File       io.Reader `json:"-"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Key        string    `json:"key"`
	BucketName string    `json:"bucket_name"`
}
