package mapping

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/core/ports"
)

// TemplateCatalog matches new filenames against the saved mapping templates.
// The template list is fetched lazily and cached for ttl.
type TemplateCatalog struct {
	source ports.MappingCatalog
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	templates []domain.ColumnMapping
	fetchedAt time.Time
}

func NewTemplateCatalog(source ports.MappingCatalog, ttl time.Duration) *TemplateCatalog {
	return &TemplateCatalog{source: source, ttl: ttl, now: time.Now}
}

// Match returns the template whose filename pattern matches name, preferring
// higher usage and then more recent use. It returns nil when none matches.
func (c *TemplateCatalog) Match(ctx context.Context, name string) (*domain.ColumnMapping, error) {
	templates, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))

	var matches []domain.ColumnMapping
	for _, t := range templates {
		pattern := strings.ToLower(strings.TrimSpace(t.FilenamePattern))
		if pattern == "" {
			continue
		}
		ok, err := path.Match(pattern, base)
		if err != nil || !ok {
			continue
		}
		matches = append(matches, t)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].UsageCount != matches[j].UsageCount {
			return matches[i].UsageCount > matches[j].UsageCount
		}
		return lastUsed(matches[i]).After(lastUsed(matches[j]))
	})
	best := matches[0]
	return &best, nil
}

// Invalidate forces the next Match to refetch templates.
func (c *TemplateCatalog) Invalidate() {
	c.mu.Lock()
	c.templates = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

func (c *TemplateCatalog) list(ctx context.Context) ([]domain.ColumnMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.templates, nil
	}
	templates, err := c.source.ListMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mapping templates: %w", err)
	}
	c.templates = templates
	c.fetchedAt = c.now()
	return templates, nil
}

func lastUsed(t domain.ColumnMapping) time.Time {
	if t.LastUsedAt == nil {
		return time.Time{}
	}
	return *t.LastUsedAt
}
