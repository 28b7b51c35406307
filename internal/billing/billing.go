// Package billing sells translation plans through Stripe checkout and
// reacts to Stripe webhooks. Monthly and annual tiers are recurring
// subscriptions; lifetime is a one-off payment.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"

	"github.com/haasonsaas/voxlate/internal/config"
	"github.com/haasonsaas/voxlate/internal/observability"
	"github.com/haasonsaas/voxlate/internal/store"
)

// ErrUnknownTier rejects digits outside 1-3.
var ErrUnknownTier = errors.New("billing: unknown tier")

// Tier is a purchasable plan, selected by menu digit.
type Tier string

const (
	TierMonthly  Tier = "monthly"
	TierAnnual   Tier = "annual"
	TierLifetime Tier = "lifetime"
)

// TierFromDigit maps the paywall menu digits to tiers.
func TierFromDigit(s string) (Tier, bool) {
	switch s {
	case "1":
		return TierMonthly, true
	case "2":
		return TierAnnual, true
	case "3":
		return TierLifetime, true
	}
	return "", false
}

// Plan returns the plan a tier activates.
func (t Tier) Plan() store.Plan {
	switch t {
	case TierMonthly:
		return store.PlanMonthly
	case TierAnnual:
		return store.PlanAnnual
	case TierLifetime:
		return store.PlanLifetime
	}
	return store.PlanFree
}

// tierFromPlanName resolves checkout metadata back to a tier.
func tierFromPlanName(name string) (Tier, bool) {
	switch Tier(name) {
	case TierMonthly, TierAnnual, TierLifetime:
		return Tier(name), true
	}
	return "", false
}

// stripeAPI is the slice of the Stripe SDK the gateway calls.
type stripeAPI interface {
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type liveAPI struct{}

func (liveAPI) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

func (liveAPI) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

// Users is the store surface billing needs.
type Users interface {
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	ActivatePlanByCustomer(ctx context.Context, customerID string, plan store.Plan, subscriptionID string) (int64, error)
	ActivatePlanByUserID(ctx context.Context, userID string, plan store.Plan, customerID, subscriptionID string) error
	DowngradeByCustomer(ctx context.Context, customerID string) (int64, error)
}

// Gateway is the billing entry point.
type Gateway struct {
	api    stripeAPI
	users  Users
	cfg    config.StripeConfig
	logger *observability.Logger
}

// New configures the Stripe SDK and builds the gateway.
func New(cfg config.StripeConfig, users Users, logger *observability.Logger) *Gateway {
	stripe.Key = cfg.APIKey
	return &Gateway{api: liveAPI{}, users: users, cfg: cfg, logger: logger}
}

// NewWithAPI injects a fake SDK, for tests.
func NewWithAPI(api stripeAPI, cfg config.StripeConfig, users Users, logger *observability.Logger) *Gateway {
	return &Gateway{api: api, users: users, cfg: cfg, logger: logger}
}

// Enabled reports whether billing is configured at all.
func (g *Gateway) Enabled() bool {
	return g.cfg.APIKey != ""
}

// CheckoutURL creates a hosted checkout session for the user and tier
// and returns its URL. The Stripe customer is created on first
// purchase attempt and persisted so webhook events can find the user.
func (g *Gateway) CheckoutURL(ctx context.Context, u *store.User, tier Tier) (string, error) {
	customerID := u.StripeCustomerID
	if customerID == "" {
		cust, err := g.api.NewCustomer(&stripe.CustomerParams{
			Phone: stripe.String(u.Phone),
			Metadata: map[string]string{
				"user_id": u.ID,
				"phone":   u.Phone,
			},
		})
		if err != nil {
			return "", fmt.Errorf("create stripe customer: %w", err)
		}
		customerID = cust.ID
		if err := g.users.SetStripeCustomer(ctx, u.ID, customerID); err != nil {
			return "", err
		}
		u.StripeCustomerID = customerID
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		Metadata: map[string]string{
			"plan":    string(tier),
			"user_id": u.ID,
		},
	}

	switch tier {
	case TierMonthly, TierAnnual:
		priceID := g.cfg.MonthlyPriceID
		if tier == TierAnnual {
			priceID = g.cfg.AnnualPriceID
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}}
	case TierLifetime:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("usd"),
				UnitAmount: stripe.Int64(g.cfg.LifetimePrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Lifetime translations"),
				},
			},
			Quantity: stripe.Int64(1),
		}}
	default:
		return "", ErrUnknownTier
	}

	sess, err := g.api.NewCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}
