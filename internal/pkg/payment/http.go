package payment

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// newProviderBreaker builds the circuit breaker shared by all calls of one
// provider client. Sustained failures trip the breaker so a dead provider
// fails fast instead of holding callback requests for the full timeout.
func newProviderBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[Payment] circuit breaker %s changed from %s to %s", name, from, to)
		},
	})
}

type httpResult struct {
	body   []byte
	status int
}

// executeWithBreaker runs one provider request through the circuit breaker.
// Network errors and 5xx responses count as breaker failures and surface as
// ErrProviderUnavailable; everything else is handed back to the caller.
func executeWithBreaker(cb *gobreaker.CircuitBreaker, client *http.Client, req *http.Request) ([]byte, int, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(body))
		}
		return httpResult{body: body, status: resp.StatusCode}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: circuit open", ErrProviderUnavailable)
		}
		return nil, 0, err
	}

	r := out.(httpResult)
	return r.body, r.status, nil
}

// classifyStatus maps a non-2xx provider response (below 500, those never get
// here) to the gateway error taxonomy.
func classifyStatus(op string, status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s rate limited", ErrProviderUnavailable, op)
	}
	return fmt.Errorf("%s failed: status=%d body=%s", op, status, string(body))
}

// minorUnits converts a decimal major-unit amount to integer minor units
// (cents) as expected by Stripe.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
