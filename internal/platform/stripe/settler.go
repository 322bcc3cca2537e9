// Package stripegw settles native wallet tokens through Stripe charges.
package stripegw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/charge"
	"go.uber.org/zap"

	"github.com/fatflowers/paycoord/internal/purchase/wallet"
)

// SetKey configures the Stripe SDK key once during bootstrap.
func SetKey(key string) { stripe.Key = key }

type chargeFunc func(params *stripe.ChargeParams) (*stripe.Charge, error)

// Settler charges wallet tokens. The token doubles as the idempotency key so a
// retried Finish never charges twice.
type Settler struct {
	create chargeFunc
	log    *zap.SugaredLogger
}

var _ wallet.Settler = (*Settler)(nil)

func New(log *zap.SugaredLogger, secretKey string) (*Settler, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("stripe secret key is empty")
	}
	SetKey(secretKey)
	return &Settler{create: charge.New, log: log}, nil
}

func (s *Settler) Settle(ctx context.Context, req *wallet.SettleRequest) (string, error) {
	if req == nil || req.Token == "" {
		return "", errors.New("settle request has no token")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	if err := params.SetSource(req.Token); err != nil {
		return "", fmt.Errorf("failed to set charge source: %w", err)
	}
	params.SetIdempotencyKey(req.Token)
	params.AddMetadata("product_id", req.ProductID)

	ch, err := s.create(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			return "", fmt.Errorf("stripe charge failed: %s: %s", serr.Code, serr.Msg)
		}
		return "", fmt.Errorf("stripe charge failed: %w", err)
	}
	if ch == nil {
		return "", errors.New("stripe returned no charge")
	}
	if ch.Status == "failed" {
		return "", fmt.Errorf("charge %s failed: %s", ch.ID, ch.FailureMessage)
	}
	if s.log != nil {
		s.log.Infow("wallet token settled", "charge_id", ch.ID, "product_id", req.ProductID, "amount", req.Amount)
	}
	return ch.ID, nil
}
