package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrFeedUnavailable indicates the bank feed is unreachable; callers
	// treat it as transient and retry on the next cycle.
	ErrFeedUnavailable = errors.New("ledger: bank feed unavailable")

	// ErrTransferRejected indicates the feed definitively refused a
	// transfer; the withdrawal is abandoned without a debit.
	ErrTransferRejected = errors.New("ledger: transfer rejected")
)

// BankFeed is the external chip bank the ledger reconciles against.
type BankFeed interface {
	// Balance returns the house account's current balance.
	Balance(ctx context.Context) (int, error)

	// Transfer sends chips from the house account to a player account.
	Transfer(ctx context.Context, to string, amount int, memo string) error
}

// AccountVerifier checks a bank account id + secret pair. The bank is
// the authority on ranked identities; the server never stores secrets.
type AccountVerifier interface {
	VerifyAccount(ctx context.Context, account, secret string) (bool, error)
}

// HTTPFeed talks to a bank service over HTTP.
type HTTPFeed struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPFeed creates a feed client for the bank at baseURL.
func NewHTTPFeed(baseURL, secret string) *HTTPFeed {
	return &HTTPFeed{
		baseURL: baseURL,
		secret:  secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type balanceResponse struct {
	Balance int    `json:"balance"`
	Error   string `json:"error,omitempty"`
}

func (f *HTTPFeed) Balance(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/balance", nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	f.authorize(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	var body balanceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode error: %v", ErrFeedUnavailable, err)
	}
	return body.Balance, nil
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int    `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

type transferResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (f *HTTPFeed) Transfer(ctx context.Context, to string, amount int, memo string) error {
	payload, err := json.Marshal(transferRequest{To: to, Amount: amount, Memo: memo})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/transfer", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	f.authorize(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusForbidden:
		return ErrTransferRejected
	default:
		return fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	var body transferResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode error: %v", ErrFeedUnavailable, err)
	}
	if !body.OK {
		return fmt.Errorf("%w: %s", ErrTransferRejected, body.Error)
	}
	return nil
}

type verifyRequest struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
}

type verifyResponse struct {
	OK bool `json:"ok"`
}

// VerifyAccount asks the bank whether the account id + secret pair is
// valid. A 401 or 403 is a definitive no; other failures are transient.
func (f *HTTPFeed) VerifyAccount(ctx context.Context, account, secret string) (bool, error) {
	payload, err := json.Marshal(verifyRequest{Account: account, Secret: secret})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	f.authorize(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode error: %v", ErrFeedUnavailable, err)
	}
	return body.OK, nil
}

func (f *HTTPFeed) authorize(req *http.Request) {
	if f.secret != "" {
		req.Header.Set("Authorization", "Bearer "+f.secret)
	}
}
