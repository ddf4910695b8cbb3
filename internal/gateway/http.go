package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toko-commerce/internal/models"

	"github.com/shopspring/decimal"
)

// HTTPGateway talks to a provider's REST API:
//
//	POST {base}/payments                      open a payment
//	GET  {base}/payments/{reference}          read its status
//	POST {base}/payments/{reference}/refunds  refund part or all of it
type HTTPGateway struct {
	provider   models.PaymentProvider
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPGateway creates a client for provider at baseURL. A nil httpClient
// gets one with timeout.
func NewHTTPGateway(provider models.PaymentProvider, baseURL, apiKey string, httpClient *http.Client, timeout time.Duration) (*HTTPGateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPGateway{provider: provider, baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}, nil
}

type initiateBody struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Customer  string `json:"customer"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type paymentBody struct {
	Reference     string `json:"reference"`
	RedirectURL   string `json:"redirect_url"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type refundBody struct {
	Amount   string `json:"amount,omitempty"`
	RefundID string `json:"refund_id,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

func (g *HTTPGateway) Provider() models.PaymentProvider {
	return g.provider
}

func (g *HTTPGateway) InitiatePayment(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	var out paymentBody
	err := g.do(ctx, http.MethodPost, "/payments", initiateBody{
		PaymentID: req.PaymentID,
		OrderID:   req.OrderID,
		Customer:  req.UserID,
		Amount:    req.Amount.StringFixed(2),
		Currency:  req.Currency,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Reference == "" {
		return nil, fmt.Errorf("%w: %s returned no payment reference", ErrGateway, g.provider)
	}
	status := StatusPending
	if out.Status != "" {
		if status, err = ParseStatus(out.Status); err != nil {
			return nil, err
		}
	}
	return &InitiateResult{Reference: out.Reference, RedirectURL: out.RedirectURL, Status: status}, nil
}

func (g *HTTPGateway) GetPaymentStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var out paymentBody
	if err := g.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	status, err := ParseStatus(out.Status)
	if err != nil {
		return nil, err
	}
	return &StatusResult{Reference: reference, Status: status, TransactionID: out.TransactionID, Reason: out.Reason}, nil
}

func (g *HTTPGateway) RefundPayment(ctx context.Context, reference string, amount decimal.Decimal) (*RefundResult, error) {
	var out refundBody
	path := "/payments/" + url.PathEscape(reference) + "/refunds"
	if err := g.do(ctx, http.MethodPost, path, refundBody{Amount: amount.StringFixed(2)}, &out); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: out.RefundID}, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", g.provider, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", g.provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: call %s: %w", ErrGateway, g.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%w: %s: %s", ErrGateway, g.provider, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", ErrGateway, g.provider, err)
	}
	return nil
}
