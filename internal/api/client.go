// Package api uploads exported runs to a replay viewer server.
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/piracysim/piracysim/pkg/core"
)

// UploadPath is the viewer endpoint receiving export files.
const UploadPath = "/api/v1/runs/add"

// Metadata describes an uploaded run so the viewer can list it without
// opening the file.
type Metadata struct {
	RunName    string
	Tag        string
	Seed       int64
	SimMinutes int
	Frames     int
}

// MetadataFor summarizes run after frames frames and simMinutes of
// simulated time.
func MetadataFor(run *core.Run, frames, simMinutes int) Metadata {
	return Metadata{
		RunName:    run.Name,
		Tag:        run.Tag,
		Seed:       run.Seed,
		SimMinutes: simMinutes,
		Frames:     frames,
	}
}

// Client talks to the viewer server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the viewer is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload streams the export file at filePath as a multipart form.
func (c *Client) Upload(filePath string, meta Metadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		fields := [][2]string{
			{"secret", c.apiKey},
			{"filename", filepath.Base(filePath)},
			{"runName", meta.RunName},
			{"tag", meta.Tag},
			{"seed", strconv.FormatInt(meta.Seed, 10)},
			{"simDuration", strconv.Itoa(meta.SimMinutes)},
			{"frames", strconv.Itoa(meta.Frames)},
		}
		for _, f := range fields {
			if err := writer.WriteField(f[0], f[1]); err != nil {
				pw.CloseWithError(err)
				errCh <- err
				return
			}
		}

		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = writer.Close()
		}
		if err != nil {
			err = fmt.Errorf("failed to write form: %w", err)
		}
		pw.CloseWithError(err)
		errCh <- err
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}
