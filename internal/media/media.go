// Package media hands uploaded media bytes to an object store.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
)

// ErrUnsupported is returned for content that is neither an image nor a video.
var ErrUnsupported = errors.New("unsupported media type")

// Stored is an object written by an Uploader.
type Stored struct {
	Path        string
	URL         string
	ContentType string
}

type Uploader interface {
	Upload(ctx context.Context, objectPath string, body io.Reader) (Stored, error)
	Remove(ctx context.Context, paths []string) error
}

// KindFor maps a MIME type to a media kind.
func KindFor(contentType string) (models.MediaKind, error) {
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo, nil
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
}

// ObjectPath is where the order-th file of a post is stored.
func ObjectPath(authorID, postID string, order int, filename string) string {
	return path.Join("posts", authorID, postID, fmt.Sprintf("%02d%s", order, strings.ToLower(path.Ext(filename))))
}

// SupabaseUploader stores media in a Supabase Storage bucket.
type SupabaseUploader struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseUploader returns nil when any setting is missing, which disables
// uploads.
func NewSupabaseUploader(projectURL, apiKey, bucket string) *SupabaseUploader {
	if projectURL == "" || apiKey == "" || bucket == "" {
		return nil
	}
	client := storage_go.NewClient(strings.TrimRight(projectURL, "/")+"/storage/v1", apiKey, nil)
	return &SupabaseUploader{client: client, bucket: bucket}
}

func (u *SupabaseUploader) Upload(_ context.Context, objectPath string, body io.Reader) (Stored, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Stored{}, err
	}
	// Detect content type from the bytes rather than trusting the client.
	contentType := http.DetectContentType(data)
	if _, err := KindFor(contentType); err != nil {
		return Stored{}, err
	}

	_, err = u.client.UploadFile(u.bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{ContentType: &contentType})
	if err != nil {
		return Stored{}, err
	}
	response := u.client.GetPublicUrl(u.bucket, objectPath)
	return Stored{Path: objectPath, URL: response.SignedURL, ContentType: contentType}, nil
}

func (u *SupabaseUploader) Remove(_ context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := u.client.RemoveFile(u.bucket, paths)
	return err
}
