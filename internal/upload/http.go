package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lapse-go/internal/lapse"
)

// HTTPUploader PUTs the body to the presigned URL the server handed out.
type HTTPUploader struct {
	client *http.Client
}

var _ lapse.Uploader = (*HTTPUploader)(nil)

// NewHTTPUploader creates an HTTPUploader. A nil client gets a generous
// timeout suited to multi-megabyte recordings.
func NewHTTPUploader(client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPUploader{client: client}
}

func (u *HTTPUploader) Put(ctx context.Context, dest lapse.UploadDestination, r io.Reader, size int64) error {
	if dest.URL == "" {
		return fmt.Errorf("upload destination has no url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, dest.URL, r)
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	if dest.Token != "" {
		req.Header.Set("Authorization", "Bearer "+dest.Token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload rejected: %s (%s)", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
