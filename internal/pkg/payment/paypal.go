package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/vendhub/vendhub/internal/pkg/env"
)

const defaultPayPalAPIBaseURL = "https://api-m.paypal.com"

// PayPalClient implements the order-style redirect flow via the PayPal Orders
// v2 API. The approval redirect returns the order id in the `order` query
// parameter; verification captures the approved order and reads its state
// server-side.
type PayPalClient struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	ReturnURL    string
	CancelURL    string

	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

func NewPayPalClientFromEnv() *PayPalClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	returnURL := strings.TrimSpace(env.GetEnv("PAYPAL_RETURN_URL", ""))
	if returnURL == "" && base != "" {
		returnURL = base + "/payments/callback/paypal/success"
	}
	cancelURL := strings.TrimSpace(env.GetEnv("PAYPAL_CANCEL_URL", ""))
	if cancelURL == "" && base != "" {
		cancelURL = base + "/payments/callback/paypal/cancel"
	}

	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL), "/"),
		ReturnURL:    returnURL,
		CancelURL:    cancelURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb: newProviderBreaker("paypal-api"),
	}
}

func (c *PayPalClient) Provider() string {
	return ProviderPayPal
}

func (c *PayPalClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(c.ReturnURL) == "" || strings.TrimSpace(c.CancelURL) == "" {
		return nil, errors.New("paypal return/cancel URLs are not configured")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"custom_id": fmt.Sprintf("%d", req.SubscriptionID),
				"amount": map[string]string{
					"currency_code": currency,
					"value":         req.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url":  c.ReturnURL,
			"cancel_url":  c.CancelURL,
			"user_action": "PAY_NOW",
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, status, err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/v2/checkout/orders", raw, token)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus("paypal order create", status, body)
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("paypal order response missing id")
	}

	redirect := ""
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			redirect = l.Href
			break
		}
	}
	if redirect == "" {
		return nil, errors.New("paypal order response missing approval link")
	}

	return &CheckoutSession{
		ProviderReference: out.ID,
		RedirectURL:       redirect,
	}, nil
}

func (c *PayPalClient) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, errors.New("payment reference is required")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	order, err := c.getOrder(ctx, ref, token)
	if err != nil {
		return nil, err
	}

	// An approved but uncaptured order is captured now; the buyer already
	// authorized the payment and the redirect back to us is the capture
	// trigger in this flow.
	if order.Status == "APPROVED" {
		if err := c.captureOrder(ctx, ref, token); err != nil {
			return nil, err
		}
		order, err = c.getOrder(ctx, ref, token)
		if err != nil {
			return nil, err
		}
	}

	v := &Verification{
		Status:   StatusUnknown,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	switch order.Status {
	case "COMPLETED":
		v.Status = StatusPaid
	case "CREATED", "APPROVED", "SAVED", "PAYER_ACTION_REQUIRED":
		v.Status = StatusUnpaid
	case "VOIDED":
		v.Status = StatusUnpaid
	}
	return v, nil
}

type paypalOrder struct {
	Status   string
	Amount   decimal.Decimal
	Currency string
}

func (c *PayPalClient) getOrder(ctx context.Context, ref, token string) (*paypalOrder, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.APIBaseURL+"/v2/checkout/orders/"+url.PathEscape(ref), nil, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrReferenceNotFound
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus("paypal order lookup", status, body)
	}

	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Amount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if len(out.PurchaseUnits) == 0 {
		return nil, errors.New("paypal order response missing purchase units")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(out.PurchaseUnits[0].Amount.Value))
	if err != nil {
		return nil, fmt.Errorf("paypal order has invalid amount: %w", err)
	}

	return &paypalOrder{
		Status:   strings.ToUpper(strings.TrimSpace(out.Status)),
		Amount:   amount,
		Currency: strings.ToUpper(strings.TrimSpace(out.PurchaseUnits[0].Amount.CurrencyCode)),
	}, nil
}

func (c *PayPalClient) captureOrder(ctx context.Context, ref, token string) error {
	body, status, err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/v2/checkout/orders/"+url.PathEscape(ref)+"/capture", []byte("{}"), token)
	if err != nil {
		return err
	}
	// ORDER_ALREADY_CAPTURED races are resolved by the follow-up lookup.
	if status == http.StatusUnprocessableEntity && bytes.Contains(body, []byte("ORDER_ALREADY_CAPTURED")) {
		return nil
	}
	if status < 200 || status >= 300 {
		return classifyStatus("paypal order capture", status, body)
	}
	return nil
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return "", errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := executeWithBreaker(c.cb, c.HTTPClient, req)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", classifyStatus("paypal token request", status, body)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("paypal token response missing access_token")
	}
	return out.AccessToken, nil
}

func (c *PayPalClient) do(ctx context.Context, method, rawURL string, payload []byte, token string) ([]byte, int, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return executeWithBreaker(c.cb, c.HTTPClient, req)
}
