package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient implements Client against the Stripe REST API using
// form-encoded requests, the way Stripe's own SDKs do under the hood.
type StripeClient struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey: secretKey,
		baseURL:   stripeAPIBase,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type stripeIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *StripeClient) CreateIntent(ctx context.Context, amount int64, currency, paymentMethodID string, metadata map[string]string) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", currency)
	form.Set("confirm", "true")
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("automatic_payment_methods[allow_redirects]", "never")
	if paymentMethodID != "" {
		form.Set("payment_method", paymentMethodID)
	}
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out stripeIntent
	if err := s.do(ctx, http.MethodPost, "/payment_intents", form, &out); err != nil {
		return Intent{}, err
	}
	return Intent{ID: out.ID, Status: out.Status, ClientSecret: out.ClientSecret}, nil
}

func (s *StripeClient) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	var out stripeIntent
	if err := s.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil, &out); err != nil {
		return Intent{}, err
	}
	return Intent{ID: out.ID, Status: out.Status, ClientSecret: out.ClientSecret}, nil
}

func (s *StripeClient) CreateRefund(ctx context.Context, intentID string, amount int64, reason string) (Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", intentID)
	form.Set("amount", strconv.FormatInt(amount, 10))
	if reason != "" {
		form.Set("metadata[reason]", reason)
	}

	var out stripeRefund
	if err := s.do(ctx, http.MethodPost, "/refunds", form, &out); err != nil {
		return Refund{}, err
	}
	return Refund{ID: out.ID, Amount: out.Amount, Status: out.Status}, nil
}

func (s *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stripe read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var se stripeError
		if json.Unmarshal(data, &se) == nil && se.Error.Message != "" {
			return fmt.Errorf("stripe: %s (%s)", se.Error.Message, se.Error.Type)
		}
		return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
