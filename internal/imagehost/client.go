// ==============================================================================
// IMAGE HOST CLIENT - internal/imagehost/client.go
// ==============================================================================
// Uploads document images to the external image CDN and returns the hosted URL.
// Only the URL is kept; the binary is never stored locally.
// ==============================================================================

package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"onboard/internal/domain"
	"onboard/pkg/errors"
	"onboard/pkg/logger"
)

const DefaultMaxFileSize = 2 * 1024 * 1024 // 2MB

// Config mirrors config.ImageHostConfig.
type Config struct {
	BaseURL      string
	CloudName    string
	UploadPreset string
	MaxFileSize  int64
	Timeout      time.Duration
}

// Client talks to the unsigned upload endpoint of the image host.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logger.Logger
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates an image host client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, log logger.Logger) *Client {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, logger: log}
}

// Endpoint is the upload URL for the configured cloud.
func (c *Client) Endpoint() string {
	return fmt.Sprintf("%s/v1_1/%s/image/upload", c.cfg.BaseURL, c.cfg.CloudName)
}

// Check enforces the size ceiling and the image mimetype before any network call.
func (c *Client) Check(file domain.ImageUpload) error {
	if file.Size() == 0 {
		return errors.ErrEmptyFile
	}
	if file.Size() > c.cfg.MaxFileSize {
		return errors.Wrap(errors.ErrFileTooLarge, fmt.Sprintf("limit is %d bytes", c.cfg.MaxFileSize))
	}
	if !strings.HasPrefix(contentType(file), "image/") {
		return errors.ErrFileTypeNotAllowed
	}
	return nil
}

// Upload posts the file as multipart form data and returns the hosted URL.
// Failures are not retried.
func (c *Client) Upload(ctx context.Context, file domain.ImageUpload) (string, error) {
	if err := c.Check(file); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", sanitizeFileName(file.Filename))
	if err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}
	if err := w.WriteField("upload_preset", c.cfg.UploadPreset); err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), &body)
	if err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	startTime := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Image upload request failed", map[string]interface{}{
			"file":  file.Filename,
			"error": err.Error(),
		})
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.ErrFileUploadFailed, err.Error())
	}

	var out uploadResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("image host returned %d", resp.StatusCode)
		if out.Error != nil && out.Error.Message != "" {
			msg += ": " + out.Error.Message
		}
		c.logger.Warn("Image upload rejected", map[string]interface{}{
			"file":   file.Filename,
			"status": resp.StatusCode,
		})
		return "", errors.Wrap(errors.ErrFileUploadFailed, msg)
	}
	if out.SecureURL == "" {
		return "", errors.Wrap(errors.ErrFileUploadFailed, "response has no secure_url")
	}

	c.logger.Info("Image uploaded", map[string]interface{}{
		"file":        file.Filename,
		"size":        file.Size(),
		"public_id":   out.PublicID,
		"duration_ms": time.Since(startTime).Milliseconds(),
	})
	return out.SecureURL, nil
}

// contentType prefers the declared type, then the extension, then sniffing.
func contentType(file domain.ImageUpload) string {
	if ct := strings.TrimSpace(file.ContentType); ct != "" && ct != "application/octet-stream" {
		return strings.ToLower(ct)
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(file.Filename))); ct != "" {
		return ct
	}
	return http.DetectContentType(file.Data)
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	r := strings.NewReplacer("..", "", " ", "_", "\"", "", "'", "", ";", "_", "&", "_", "|", "_")
	return r.Replace(name)
}
