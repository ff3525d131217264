package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/vendhub/vendhub/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient implements the session-style redirect flow via Stripe Checkout
// Sessions. The success redirect carries the session id back in the `session`
// query parameter; verification reads the session server-side.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string
	SuccessURL string
	CancelURL  string

	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

func NewStripeClientFromEnv() *StripeClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	successURL := strings.TrimSpace(env.GetEnv("STRIPE_SUCCESS_URL", ""))
	if successURL == "" && base != "" {
		// Stripe substitutes the placeholder with the real session id.
		successURL = base + "/payments/callback/stripe?session={CHECKOUT_SESSION_ID}"
	}
	cancelURL := strings.TrimSpace(env.GetEnv("STRIPE_CANCEL_URL", ""))
	if cancelURL == "" && base != "" {
		cancelURL = base + "/payments/cancelled"
	}

	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb: newProviderBreaker("stripe-api"),
	}
}

func (c *StripeClient) Provider() string {
	return ProviderStripe
}

func (c *StripeClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	if strings.TrimSpace(c.SuccessURL) == "" || strings.TrimSpace(c.CancelURL) == "" {
		return nil, errors.New("stripe success/cancel URLs are not configured")
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Subscription #%d", req.SubscriptionID)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.SuccessURL)
	form.Set("cancel_url", c.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", minorUnits(req.Amount)))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("metadata[subscription_id]", fmt.Sprintf("%d", req.SubscriptionID))

	body, status, err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/checkout/sessions", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus("stripe checkout create", status, body)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" || strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("stripe checkout response missing id or url")
	}

	return &CheckoutSession{
		ProviderReference: out.ID,
		RedirectURL:       out.URL,
	}, nil
}

func (c *StripeClient) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, errors.New("payment reference is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	body, status, err := c.do(ctx, http.MethodGet, c.APIBaseURL+"/checkout/sessions/"+url.PathEscape(ref), nil, "")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrReferenceNotFound
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus("stripe checkout verify", status, body)
	}

	var out struct {
		ID            string `json:"id"`
		PaymentStatus string `json:"payment_status"`
		AmountTotal   int64  `json:"amount_total"`
		Currency      string `json:"currency"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	v := &Verification{
		Status:   StatusUnknown,
		Amount:   decimal.NewFromInt(out.AmountTotal).Div(decimal.NewFromInt(100)),
		Currency: strings.ToUpper(strings.TrimSpace(out.Currency)),
	}
	switch strings.ToLower(strings.TrimSpace(out.PaymentStatus)) {
	case "paid", "no_payment_required":
		v.Status = StatusPaid
	case "unpaid":
		v.Status = StatusUnpaid
	}
	return v, nil
}

func (c *StripeClient) do(ctx context.Context, method, rawURL string, payload io.Reader, contentType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return executeWithBreaker(c.cb, c.HTTPClient, req)
}
