package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// FetchStatus reads the status of a running bridge from its control API at baseURL.
func FetchStatus(ctx context.Context, baseURL string) (domain.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Status{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.Status{}, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Status{}, fmt.Errorf("%s returned %s", url, resp.Status)
	}
	var st domain.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return domain.Status{}, fmt.Errorf("invalid status response: %w", err)
	}
	return st, nil
}
