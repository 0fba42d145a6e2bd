package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// SubmitOCR is not retried: a resubmission would start a second job.
func (c *Client) SubmitOCR(ctx context.Context, file domain.FileSource) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name(), err)
	}
	defer rc.Close()

	req, err := multipartRequest(apiPrefix+"/ocr/jobs", nil, "file", file.Name(), rc)
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, "submit_ocr", single, req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("submit ocr: empty job id")
	}
	return out.JobID, nil
}

func (c *Client) GetOCRJob(ctx context.Context, jobID string) (*domain.OCRJob, error) {
	req := request{method: http.MethodGet, path: apiPrefix + "/ocr/jobs/" + url.PathEscape(jobID)}
	var out domain.OCRJob
	if err := c.do(ctx, "get_ocr_job", retried, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = jobID
	}
	switch out.Status {
	case domain.OCRPending, domain.OCRDone, domain.OCRFailed:
	case "queued", "processing", "running":
		out.Status = domain.OCRPending
	default:
		return nil, fmt.Errorf("get ocr job %s: unknown status %q", jobID, out.Status)
	}
	return &out, nil
}
