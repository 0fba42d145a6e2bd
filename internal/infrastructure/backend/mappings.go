package backend

import (
	"context"
	"net/http"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func (c *Client) ListMappings(ctx context.Context) ([]domain.ColumnMapping, error) {
	req := request{method: http.MethodGet, path: apiPrefix + "/mappings"}
	var out struct {
		Mappings []domain.ColumnMapping `json:"mappings"`
	}
	if err := c.do(ctx, "list_mappings", retried, req, &out); err != nil {
		return nil, err
	}
	return out.Mappings, nil
}

func (c *Client) SuggestMapping(ctx context.Context, headers []string, docType domain.DocumentType) (map[string]string, error) {
	req, err := jsonRequest(http.MethodPost, apiPrefix+"/mappings/suggest", map[string]any{
		"headers":     headers,
		"source_type": docType,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Mapping map[string]string `json:"mapping"`
	}
	if err := c.do(ctx, "suggest_mapping", retried, req, &out); err != nil {
		return nil, err
	}
	return out.Mapping, nil
}
