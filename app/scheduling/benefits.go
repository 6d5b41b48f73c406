package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Benefits describes the subscriber tier benefits of a feed owner.
type Benefits struct {
	IsSupporter bool `json:"isSupporter"`
}

// BenefitsLookup resolves tier benefits for an owner. Implementations must
// report failure instead of panicking; callers fall back to the default rate.
type BenefitsLookup interface {
	BenefitsOfOwner(ctx context.Context, ownerID string) (Benefits, error)
}

// HTTPBenefitsLookup queries an external benefits service.
type HTTPBenefitsLookup struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPBenefitsLookup(baseURL string, httpClient *http.Client) *HTTPBenefitsLookup {
	return &HTTPBenefitsLookup{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (l *HTTPBenefitsLookup) BenefitsOfOwner(ctx context.Context, ownerID string) (Benefits, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := fmt.Sprintf("%s/owners/%s/benefits", l.baseURL, url.PathEscape(ownerID))
	req, err := http.NewRequestWithContext(reqCtx, "GET", endpoint, nil)
	if err != nil {
		return Benefits{}, fmt.Errorf("failed to create benefits request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return Benefits{}, fmt.Errorf("benefits lookup failed for owner %s: %w", ownerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Benefits{}, fmt.Errorf("benefits lookup returned HTTP %d for owner %s", resp.StatusCode, ownerID)
	}

	var benefits Benefits
	if err := json.NewDecoder(resp.Body).Decode(&benefits); err != nil {
		return Benefits{}, fmt.Errorf("failed to decode benefits response: %w", err)
	}

	return benefits, nil
}

// StaticBenefitsLookup resolves benefits from a fixed supporter list.
// Used in single-node mode when no benefits service is configured.
type StaticBenefitsLookup struct {
	supporters map[string]bool
}

func NewStaticBenefitsLookup(supporterOwnerIDs []string) *StaticBenefitsLookup {
	supporters := make(map[string]bool, len(supporterOwnerIDs))
	for _, id := range supporterOwnerIDs {
		supporters[id] = true
	}
	return &StaticBenefitsLookup{supporters: supporters}
}

func (l *StaticBenefitsLookup) BenefitsOfOwner(_ context.Context, ownerID string) (Benefits, error) {
	return Benefits{IsSupporter: l.supporters[ownerID]}, nil
}
