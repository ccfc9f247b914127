package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/types"
)

// Trader executes one conversion and blocks until it settled on-chain or failed.
type Trader interface {
	ExecuteTrade(ctx context.Context, walletID string, amount decimal.Decimal, from, to string) (*types.Trade, error)
}

type Config struct {
	URL          string        `mapstructure:"url" json:"url,omitempty"`
	Token        string        `mapstructure:"token" json:"token,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	HTTPRetryMax int           `mapstructure:"http_retry_max" json:"http_retry_max,omitempty"`
}

const (
	tradeEndpoint  = "/trade"
	defaultTimeout = 5 * time.Minute
	retryWaitMax   = 30 * time.Second
)

// MaxCallDuration bounds one ExecuteTrade call: every transport try running
// to the timeout plus the waits between them.
func (c Config) MaxCallDuration() time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := max(c.HTTPRetryMax, 0)
	return time.Duration(retries+1)*timeout + time.Duration(retries)*retryWaitMax
}

type HTTPClient struct {
	logger  *logrus.Logger
	client  *retryablehttp.Client
	baseURL string
	token   string
}

var _ Trader = (*HTTPClient)(nil)

func NewHTTPClient(logger *logrus.Logger, cfg Config) *HTTPClient {
	logger = logger.WithField("pkg", "trade.HTTPClient").Logger

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = timeout
	retryClient.Logger = logger
	// Only connection-level failures are retried here: a trade that reached the
	// custody service must never be resubmitted by the transport.
	retryClient.RetryMax = cfg.HTTPRetryMax
	retryClient.RetryWaitMax = retryWaitMax
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil && resp == nil, nil
	}

	return &HTTPClient{
		logger:  logger,
		client:  retryClient,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
	}
}

type tradeRequest struct {
	WalletID  string `json:"wallet_id"`
	Amount    string `json:"amount"`
	FromAsset string `json:"from_token"`
	ToAsset   string `json:"to_token"`
}

type tradeResponse struct {
	Success bool         `json:"success"`
	Data    *types.Trade `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (c *HTTPClient) ExecuteTrade(
	ctx context.Context,
	walletID string,
	amount decimal.Decimal,
	from, to string,
) (*types.Trade, error) {
	body, err := json.Marshal(tradeRequest{
		WalletID:  walletID,
		Amount:    amount.String(),
		FromAsset: ResolveAsset(from),
		ToAsset:   ResolveAsset(to),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trade request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tradeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build trade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call trade service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade response: %w", err)
	}

	var res tradeResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("failed to unmarshal trade response: %w", err)
		}
	}

	if resp.StatusCode != http.StatusOK || !res.Success {
		return nil, statusError(resp.StatusCode, res.Error, raw)
	}
	if res.Data == nil {
		return nil, errors.New("trade service returned no trade")
	}

	c.logger.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"trade_id":  res.Data.TradeID,
		"tx_hash":   res.Data.TxHash,
	}).Info("trade settled")
	return res.Data, nil
}

// statusError turns a failed response into a typed error. The message is kept
// verbatim so keyword classification still works for unknown status codes.
func statusError(code int, message string, raw []byte) error {
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	switch code {
	case http.StatusPaymentRequired:
		return fmt.Errorf("trade rejected: %s: %w", message, types.ErrInsufficientFunds)
	case http.StatusNotFound:
		return fmt.Errorf("trade rejected: %s: %w", message, types.ErrNotFound)
	case http.StatusBadRequest:
		return types.NewValidationError(fmt.Errorf("trade rejected: %s", message), message)
	default:
		return fmt.Errorf("trade failed: status_code: %d, error: %s", code, message)
	}
}
