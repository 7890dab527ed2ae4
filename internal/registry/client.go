package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/trialscope/trialscope/internal/common"
	"github.com/trialscope/trialscope/internal/trial"
)

// requestedFields keeps registry responses to the modules the normalizer
// actually consumes.
var requestedFields = []string{
	"protocolSection.identificationModule",
	"protocolSection.statusModule",
	"protocolSection.sponsorCollaboratorsModule",
	"protocolSection.descriptionModule",
	"protocolSection.conditionsModule",
	"protocolSection.designModule",
	"protocolSection.armsInterventionsModule",
	"protocolSection.outcomesModule",
	"protocolSection.eligibilityModule",
}

// FetchParams narrow a study fetch. Zero values leave the dimension
// unconstrained; Max of zero falls back to the configured ceiling.
type FetchParams struct {
	Condition    string `json:"condition,omitempty"`
	Status       string `json:"status,omitempty"`
	UpdatedSince string `json:"updated_since,omitempty"`
	UpdatedUntil string `json:"updated_until,omitempty"`
	Max          int    `json:"max,omitempty"`
}

// Client pages through the registry's v2 studies endpoint. Requests are
// rate-limited so bulk ingests stay within the registry's published limits.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient constructs a Client from the given configuration.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

type studiesPage struct {
	Studies       []trial.RawStudy `json:"studies"`
	NextPageToken string           `json:"nextPageToken"`
}

// FetchStudies pages through the registry until params.Max studies are
// collected or the registry reports no further page.
func (c *Client) FetchStudies(ctx context.Context, params FetchParams) ([]trial.RawStudy, error) {
	max := params.Max
	if max <= 0 || max > c.cfg.MaxStudies {
		max = c.cfg.MaxStudies
	}
	logger := common.Logger()
	var studies []trial.RawStudy
	token := ""
	for len(studies) < max {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("registry: rate limiter: %w", err)
		}
		page, err := c.fetchPage(ctx, params, token, min(c.cfg.PageSize, max-len(studies)))
		if err != nil {
			return nil, err
		}
		studies = append(studies, page.Studies...)
		logger.Debug("registry: fetched page", "studies", len(page.Studies), "total", len(studies))
		if page.NextPageToken == "" || len(page.Studies) == 0 {
			break
		}
		token = page.NextPageToken
	}
	if len(studies) > max {
		studies = studies[:max]
	}
	return studies, nil
}

func (c *Client) fetchPage(ctx context.Context, params FetchParams, token string, pageSize int) (studiesPage, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/studies"
	values := url.Values{}
	values.Set("format", "json")
	values.Set("pageSize", strconv.Itoa(pageSize))
	values.Set("fields", strings.Join(requestedFields, ","))
	if params.Condition != "" {
		values.Set("query.cond", params.Condition)
	}
	if params.Status != "" {
		values.Set("filter.overallStatus", strings.ToUpper(params.Status))
	}
	if expr := updateRange(params.UpdatedSince, params.UpdatedUntil); expr != "" {
		values.Set("filter.advanced", expr)
	}
	if token != "" {
		values.Set("pageToken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return studiesPage{}, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return studiesPage{}, fmt.Errorf("registry: fetch studies: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return studiesPage{}, fmt.Errorf("registry: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var page studiesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return studiesPage{}, fmt.Errorf("registry: decode studies page: %w", err)
	}
	return page, nil
}

// updateRange builds the advanced-filter expression constraining the last
// update date. Open ends use the registry's MIN/MAX sentinels.
func updateRange(since, until string) string {
	if since == "" && until == "" {
		return ""
	}
	if since == "" {
		since = "MIN"
	}
	if until == "" {
		until = "MAX"
	}
	return fmt.Sprintf("AREA[LastUpdatePostDate]RANGE[%s,%s]", since, until)
}
