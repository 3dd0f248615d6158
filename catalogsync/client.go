package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/models"
	"golang.org/x/time/rate"
)

var (
	ErrBranchNotFound  = errors.New("branch not found at upstream catalog")
	ErrCatalogDisabled = errors.New("upstream catalog url is not configured")
)

// Fetcher reads a branch and its products from the upstream catalog.
type Fetcher interface {
	FetchBranch(ctx context.Context, referenceId uuid.UUID) (*models.CatalogBranch, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string, rateLimitPerMin int) *Client {
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 60
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rateLimitPerMin)), 1),
	}
}

func (c *Client) FetchBranch(ctx context.Context, referenceId uuid.UUID) (*models.CatalogBranch, error) {
	if c.baseURL == "" {
		return nil, ErrCatalogDisabled
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("id", referenceId.String())
	endpoint := c.baseURL + "/customer/v1/branch?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBranchNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed upstreamBranchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Data == nil {
		return nil, ErrBranchNotFound
	}
	return toCatalogBranch(parsed.Data), nil
}

// toCatalogBranch flattens categories; products with an unparsable id are dropped.
func toCatalogBranch(b *upstreamBranch) *models.CatalogBranch {
	catalog := &models.CatalogBranch{Name: strings.TrimSpace(b.Name)}
	seen := make(map[uuid.UUID]bool)
	for _, category := range b.BranchProductCategories {
		for _, p := range category.Products {
			id, err := uuid.Parse(strings.TrimSpace(p.ID))
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			catalog.Products = append(catalog.Products, models.CatalogProduct{
				ReferenceId: id,
				Name:        strings.TrimSpace(p.Name),
			})
		}
	}
	return catalog
}
