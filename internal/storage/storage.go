// Package storage talks to the remote object bucket that holds the gallery blobs
// and the captured evidence images (Supabase storage).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	storage_go "github.com/supabase-community/storage-go"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Client wraps the Supabase storage client for one bucket.
type Client struct {
	bucket string
	api    *storage_go.Client

	// The SDK keeps per-upload headers on a shared transport, so calls are serialized.
	mu sync.Mutex
}

// NewClient creates a client for one bucket. baseURL is the project URL, e.g. https://xyz.supabase.co.
func NewClient(baseURL, key, bucket string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("storage URL is required")
	}
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid storage URL %q: scheme and host are required", baseURL)
	}

	var headers map[string]string
	if key != "" {
		headers = map[string]string{"apikey": key}
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/storage/v1"
	return &Client{
		bucket: bucket,
		api:    storage_go.NewClient(endpoint, key, headers),
	}, nil
}

func cleanPath(path string) string {
	return strings.TrimLeft(path, "/")
}

// PublicURL returns the public download URL of an object.
func (c *Client) PublicURL(path string) string {
	return c.api.GetPublicUrl(c.bucket, cleanPath(path)).SignedURL
}

// Download fetches an object's bytes.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := c.call(ctx, func() error {
		var err error
		data, err = c.api.DownloadFile(c.bucket, cleanPath(path))
		return err
	})
	if err != nil {
		return nil, wrap("downloading", path, err)
	}
	return data, nil
}

// Upload stores data at path, overwriting an existing object.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	upsert := true
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}
	err := c.call(ctx, func() error {
		_, err := c.api.UploadFile(c.bucket, cleanPath(path), bytes.NewReader(data), opts)
		return err
	})
	if err != nil {
		return wrap("uploading", path, err)
	}
	return nil
}

// call runs one SDK request. The SDK takes no context, so a cancelled ctx returns
// immediately while the request finishes in the background.
func (c *Client) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wrap(op, path string, err error) error {
	var se *storage_go.StorageError
	if !errors.As(err, &se) {
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
	if se.Status == 404 || strings.Contains(strings.ToLower(se.Message), "not found") {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	msg := se.Message
	if msg == "" {
		msg = "request rejected"
	}
	if se.Status != 0 {
		return fmt.Errorf("%s %s: storage returned %d: %s", op, path, se.Status, msg)
	}
	return fmt.Errorf("%s %s: storage error: %s", op, path, msg)
}
