// Package ledger talks to the ledger gateway: network parameters, account
// nonces and transaction submission.
package ledger

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every gateway request unless configured otherwise.
const DefaultTimeout = 30 * time.Second

var (
	ErrGatewayRequest  = errors.New("gateway request failed")
	ErrGatewayResponse = errors.New("unexpected gateway response")
)

// NetworkConfig holds the network parameters needed to build transactions.
type NetworkConfig struct {
	ChainID     string
	MinGasLimit uint64
	MinGasPrice uint64
}

// GatewayConfig configures the gateway client.
type GatewayConfig struct {
	// URL is the base URL of the gateway.
	URL string

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Gateway is a REST client of the ledger gateway.
type Gateway struct {
	client *resty.Client
}

// envelope is the shape of every gateway response.
type envelope[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type networkConfigData struct {
	Config struct {
		ChainID     string `json:"erd_chain_id"`
		MinGasLimit uint64 `json:"erd_min_gas_limit"`
		MinGasPrice uint64 `json:"erd_min_gas_price"`
	} `json:"config"`
}

type accountData struct {
	Account struct {
		Address string `json:"address"`
		Nonce   uint64 `json:"nonce"`
		Balance string `json:"balance"`
	} `json:"account"`
}

type sendData struct {
	TxHash string `json:"txHash"`
}

// NewGateway creates a gateway client.
func NewGateway(config GatewayConfig) *Gateway {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var client *resty.Client
	if config.HTTPClient != nil {
		client = resty.NewWithClient(config.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(config.URL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Gateway{client: client}
}

// NetworkConfig fetches the network parameters.
func (g *Gateway) NetworkConfig(ctx context.Context) (*NetworkConfig, error) {
	var out envelope[networkConfigData]
	if err := g.do(ctx, http.MethodGet, "/network/config", nil, &out); err != nil {
		return nil, err
	}
	if out.Data.Config.ChainID == "" {
		return nil, errors.Wrap(ErrGatewayResponse, "network config without chain id")
	}
	return &NetworkConfig{
		ChainID:     out.Data.Config.ChainID,
		MinGasLimit: out.Data.Config.MinGasLimit,
		MinGasPrice: out.Data.Config.MinGasPrice,
	}, nil
}

// AccountNonce returns the current on-ledger nonce of an account.
func (g *Gateway) AccountNonce(ctx context.Context, bech32 string) (uint64, error) {
	var out envelope[accountData]
	if err := g.do(ctx, http.MethodGet, "/address/"+bech32, nil, &out); err != nil {
		return 0, err
	}
	return out.Data.Account.Nonce, nil
}

// SendTransaction submits a signed transaction and returns its hash.
func (g *Gateway) SendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	if tx.Signature == "" {
		return "", errors.New("transaction is not signed")
	}

	var out envelope[sendData]
	if err := g.do(ctx, http.MethodPost, "/transaction/send", tx, &out); err != nil {
		return "", err
	}
	if out.Data.TxHash == "" {
		return "", errors.Wrap(ErrGatewayResponse, "send transaction returned no hash")
	}
	return out.Data.TxHash, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body, result any) error {
	req := g.client.R().SetContext(ctx).SetResult(result)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(ErrGatewayRequest, "%s %s: %v", method, path, err)
	}
	if resp.IsError() {
		return errors.Wrapf(ErrGatewayRequest, "%s %s: status %d: %s", method, path, resp.StatusCode(), resp.String())
	}
	return nil
}
