// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"time"
)

var ErrBlobNotFound = errors.New("blob not found")

// Blob is a stored object as read back from a sink that supports listing.
type Blob struct {
	Bucket      string    `json:"bucket"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
