package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loo-finder/models"
	"loo-finder/utils/errors"
)

// HTTPFinder queries the backend's /toilets/nearby endpoint. Transport errors
// and 5xx responses are retried with exponential backoff; 4xx are not.
type HTTPFinder struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
}

type nearbyResponse struct {
	Toilets []models.Toilet `json:"toilets"`
	Count   int             `json:"count"`
}

func NewHTTPFinder(baseURL string, maxRetries int) *HTTPFinder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPFinder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: uint64(maxRetries),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
	}
}

func (f *HTTPFinder) FindNearby(ctx context.Context, center models.Coordinate, radiusMeters float64) ([]models.Toilet, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(center.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(center.Longitude, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(radiusMeters, 'f', -1, 64))
	endpoint := f.baseURL + "/toilets/nearby?" + q.Encode()

	var result nearbyResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("backend returned %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			apiErr := &errors.APIError{}
			if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
				apiErr = errors.NewAPIError("UPSTREAM_ERROR", "Unexpected backend response", resp.StatusCode, resp.Status)
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return backoff.Permanent(fmt.Errorf("decode nearby response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.backoff(), f.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("find nearby toilets: %w", err)
	}
	return result.Toilets, nil
}
