package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// Creating calls map 409 to ErrDuplicate: the server already imported this
// source.
var createPolicy = callPolicy{once: true, conflict: domain.ErrDuplicate}

func (c *Client) CreateBatch(ctx context.Context, origin string, docType domain.DocumentType, meta *domain.ClassificationMetadata) (*domain.Batch, error) {
	payload := map[string]any{
		"origin":      origin,
		"source_type": docType,
	}
	if meta != nil {
		payload["classification"] = meta
	}
	req, err := jsonRequest(http.MethodPost, apiPrefix+"/batches", payload)
	if err != nil {
		return nil, err
	}
	var out domain.Batch
	if err := c.do(ctx, "create_batch", createPolicy, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create batch: empty batch id")
	}
	return &out, nil
}

func (c *Client) CreateBatchFromUpload(ctx context.Context, in ports.FromUploadRequest) (*domain.Batch, error) {
	req, err := jsonRequest(http.MethodPost, apiPrefix+"/batches/from-upload", in)
	if err != nil {
		return nil, err
	}
	var out domain.Batch
	if err := c.do(ctx, "create_batch_from_upload", createPolicy, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("create batch from upload: empty batch id")
	}
	return &out, nil
}

func (c *Client) IngestBatch(ctx context.Context, batchID string, rows []domain.IngestRow, mappingID string) (*domain.IngestResult, error) {
	payload := map[string]any{"rows": rows}
	if mappingID != "" {
		payload["mapping_id"] = mappingID
	}
	req, err := jsonRequest(http.MethodPost, batchPath(batchID, "ingest"), payload)
	if err != nil {
		return nil, err
	}
	var out domain.IngestResult
	if err := c.do(ctx, "ingest_batch", createPolicy, req, &out); err != nil {
		return nil, err
	}
	if out.BatchID == "" {
		out.BatchID = batchID
	}
	return &out, nil
}

func (c *Client) ValidateBatch(ctx context.Context, batchID string) (*domain.IngestResult, error) {
	req := request{method: http.MethodPost, path: batchPath(batchID, "validate")}
	var out domain.IngestResult
	if err := c.do(ctx, "validate_batch", retried, req, &out); err != nil {
		return nil, err
	}
	if out.BatchID == "" {
		out.BatchID = batchID
	}
	return &out, nil
}

func (c *Client) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	req := request{method: http.MethodGet, path: batchPath(batchID)}
	var out domain.Batch
	if err := c.do(ctx, "get_batch", retried, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmBatch(ctx context.Context, batchID, parserID string) error {
	req, err := jsonRequest(http.MethodPost, batchPath(batchID, "confirm"), map[string]string{"parser_id": parserID})
	if err != nil {
		return err
	}
	return c.do(ctx, "confirm_batch", retried, req, nil)
}

func (c *Client) ConfirmationStatus(ctx context.Context, batchID string) (*domain.ConfirmationStatus, error) {
	req := request{method: http.MethodGet, path: batchPath(batchID, "confirmation-status")}
	var out domain.ConfirmationStatus
	if err := c.do(ctx, "confirmation_status", retried, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListItems(ctx context.Context, batchID string, status domain.ItemValidation) ([]domain.Item, error) {
	req := request{method: http.MethodGet, path: batchPath(batchID, "items")}
	if status != "" {
		req.query = url.Values{"status": []string{string(status)}}
	}
	var out struct {
		Items []domain.Item `json:"items"`
	}
	if err := c.do(ctx, "list_items", retried, req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) PatchItem(ctx context.Context, batchID, itemID string, normalized map[string]any) (*domain.Item, error) {
	req, err := jsonRequest(http.MethodPatch, batchPath(batchID, "items", url.PathEscape(itemID)), map[string]any{
		"normalized": normalized,
	})
	if err != nil {
		return nil, err
	}
	var out domain.Item
	if err := c.do(ctx, "patch_item", retried, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ErrorsReport returns the server's delimited text report of rejected rows.
func (c *Client) ErrorsReport(ctx context.Context, batchID string) ([]byte, error) {
	req := request{method: http.MethodGet, path: batchPath(batchID, "errors")}
	var out []byte
	if err := c.do(ctx, "errors_report", retried, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AttachBatchPhoto(ctx context.Context, batchID, filename string, body io.Reader) error {
	req, err := multipartRequest(batchPath(batchID, "photos"), nil, "file", filename, body)
	if err != nil {
		return fmt.Errorf("build photo request: %w", err)
	}
	return c.do(ctx, "attach_batch_photo", single, req, nil)
}

func (c *Client) AttachItemPhoto(ctx context.Context, batchID, itemID, filename string, body io.Reader) error {
	req, err := multipartRequest(batchPath(batchID, "items", url.PathEscape(itemID), "photos"), nil, "file", filename, body)
	if err != nil {
		return fmt.Errorf("build photo request: %w", err)
	}
	return c.do(ctx, "attach_item_photo", single, req, nil)
}

// PromoteBatch is single shot; a 409 means the batch was promoted already.
func (c *Client) PromoteBatch(ctx context.Context, batchID string, opts domain.PromoteOptions) (*domain.PromoteResult, error) {
	req, err := jsonRequest(http.MethodPost, batchPath(batchID, "promote"), opts)
	if err != nil {
		return nil, err
	}
	var out domain.PromoteResult
	if err := c.do(ctx, "promote_batch", callPolicy{once: true, conflict: domain.ErrPromotionConflict}, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
