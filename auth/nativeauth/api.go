package nativeauth

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

// APIClient reads block timestamps from the ledger API.
type APIClient struct {
	client *resty.Client
}

type blockTimestamp struct {
	Timestamp int64 `json:"timestamp"`
}

// NewAPIClient creates a client for the API at url.
func NewAPIClient(url string, timeout time.Duration) *APIClient {
	return &APIClient{
		client: resty.New().SetBaseURL(url).SetTimeout(timeout),
	}
}

// BlockTimestamp returns the timestamp of the block with the given hash.
func (c *APIClient) BlockTimestamp(ctx context.Context, hash string) (int64, error) {
	var out blockTimestamp
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("hash", hash).
		SetQueryParam("fields", "timestamp").
		SetResult(&out).
		Get("/blocks/{hash}")
	if err != nil {
		return 0, errors.Wrapf(err, "failed to fetch block %s", hash)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest {
		return 0, errors.Wrapf(ErrBlockNotFound, "block %s", hash)
	}
	if resp.IsError() {
		return 0, errors.Newf("block %s lookup returned status %d", hash, resp.StatusCode())
	}
	if out.Timestamp == 0 {
		return 0, errors.Wrapf(ErrBlockNotFound, "block %s has no timestamp", hash)
	}
	return out.Timestamp, nil
}

// LatestTimestamp returns the timestamp of the most recent block.
func (c *APIClient) LatestTimestamp(ctx context.Context) (int64, error) {
	var out []blockTimestamp
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"size": "1", "fields": "timestamp"}).
		SetResult(&out).
		Get("/blocks")
	if err != nil {
		return 0, errors.Wrap(err, "failed to fetch latest block")
	}
	if resp.IsError() || len(out) == 0 {
		return 0, errors.Newf("latest block lookup returned status %d", resp.StatusCode())
	}
	return out[0].Timestamp, nil
}
