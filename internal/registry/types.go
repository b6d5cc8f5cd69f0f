// Package registry provides the client for the remote video registry: the
// source of truth for which videos exist, their metadata, and their content
// manifests.
package registry

import (
	"context"
	"time"

	idxerrors "github.com/playbacklab/vidsearch/internal/errors"
	"github.com/playbacklab/vidsearch/internal/model"
)

// VideoMetadata is one registry listing entry.
type VideoMetadata struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Client is the registry contract consumed by the indexer.
type Client interface {
	// ListVideos returns metadata for every video the registry knows about.
	ListVideos(ctx context.Context) ([]VideoMetadata, error)

	// GetManifest fetches the content manifest for a video.
	GetManifest(ctx context.Context, videoID string) (*model.Manifest, error)
}

// Sentinel errors for registry failures. Compare with errors.Is; matching is
// by error code, so wrapped instances still match.
var (
	// ErrNotFound means the video or manifest does not exist. Not retryable.
	ErrNotFound = idxerrors.New(idxerrors.ErrCodeVideoNotFound, "video not found in registry", nil)

	// ErrUnavailable means the registry could not be reached or returned a
	// server error. Retryable.
	ErrUnavailable = idxerrors.New(idxerrors.ErrCodeRegistryUnavailable, "registry unavailable", nil)

	// ErrUnauthorized means the registry rejected the request. Not retryable.
	ErrUnauthorized = idxerrors.New(idxerrors.ErrCodeRegistryUnauthorized, "registry rejected credentials", nil)
)
