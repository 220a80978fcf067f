package database

import (
	"errors"
	"time"
)

var (
	// ErrImageNotFound is returned when no registry row has the given key.
	ErrImageNotFound = errors.New("image not found")
	// ErrThumbnailAlreadySet is returned by AttachThumbnail when the row
	// already carries a different thumbnail path.
	ErrThumbnailAlreadySet = errors.New("thumbnail already set")
)

// ImageRecord is one catalogued image.
type ImageRecord struct {
	ID            int64     `json:"id"`
	FileName      string    `json:"fileName"`
	Path          string    `json:"path"`
	Extension     string    `json:"extension"`
	Size          int64     `json:"size"`
	ModTime       time.Time `json:"modTime"`
	Hash          string    `json:"hash"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PendingImage is a registry row still waiting for a thumbnail.
type PendingImage struct {
	ID        int64
	FileName  string
	Path      string
	Extension string
}
