package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

func (c *Client) InitUpload(ctx context.Context, filename, contentType string, size, desiredPartSize int64) (*ports.InitUploadResponse, error) {
	payload := map[string]any{
		"filename":     filename,
		"content_type": contentType,
		"size":         size,
	}
	if desiredPartSize > 0 {
		payload["part_size"] = desiredPartSize
	}
	req, err := jsonRequest(http.MethodPost, apiPrefix+"/uploads/init", payload)
	if err != nil {
		return nil, err
	}
	var out ports.InitUploadResponse
	if err := c.do(ctx, "init_upload", single, req, &out); err != nil {
		return nil, err
	}
	if out.UploadID == "" {
		return nil, fmt.Errorf("init upload: empty upload id")
	}
	return &out, nil
}

// UploadPart sends one part. Parts are never retried here; a failed part
// aborts the whole transfer.
func (c *Client) UploadPart(ctx context.Context, uploadID string, partNumber int, data []byte) (*ports.PartResponse, error) {
	req := request{
		method:      http.MethodPut,
		path:        apiPrefix + "/uploads/" + url.PathEscape(uploadID) + "/parts/" + strconv.Itoa(partNumber),
		body:        data,
		contentType: "application/octet-stream",
	}
	var out ports.PartResponse
	if err := c.do(ctx, "upload_part", single, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteUpload(ctx context.Context, uploadID string, expectedParts int, expectedSize int64) (*ports.CompleteUploadResponse, error) {
	req, err := jsonRequest(http.MethodPost, apiPrefix+"/uploads/"+url.PathEscape(uploadID)+"/complete", map[string]any{
		"expected_parts": expectedParts,
		"expected_size":  expectedSize,
	})
	if err != nil {
		return nil, err
	}
	var out ports.CompleteUploadResponse
	if err := c.do(ctx, "complete_upload", single, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
