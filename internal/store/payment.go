package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/event-assistant/internal/model"
)

// LinkPaymentGateway issues hosted-checkout links under a base URL. The
// checkout page owns settlement.
type LinkPaymentGateway struct {
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewLinkPaymentGateway creates a gateway. ttl <= 0 means 30 minutes.
func NewLinkPaymentGateway(baseURL string, ttl time.Duration) *LinkPaymentGateway {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &LinkPaymentGateway{baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, now: time.Now}
}

// CreatePaymentLink implements PaymentGateway.
func (g *LinkPaymentGateway) CreatePaymentLink(_ context.Context, o *model.Order) (*model.PaymentLink, error) {
	if g.baseURL == "" {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	if o.ID == "" || o.Amount < 0 {
		return nil, fmt.Errorf("invalid order for payment")
	}
	ref := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	q := url.Values{}
	q.Set("order", o.ID)
	q.Set("ref", ref)
	q.Set("amount", strconv.FormatInt(o.Amount, 10))
	q.Set("currency", o.Currency)
	return &model.PaymentLink{
		OrderID:   o.ID,
		Reference: ref,
		URL:       g.baseURL + "/checkout?" + q.Encode(),
		ExpiresAt: g.now().Add(g.ttl),
	}, nil
}
