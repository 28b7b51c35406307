package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// ErrBadSignature rejects webhook deliveries that fail verification.
// Nothing is mutated when this is returned.
var ErrBadSignature = errors.New("billing: invalid webhook signature")

// HandleWebhook verifies and processes one Stripe webhook delivery.
// Unhandled event types are acknowledged without action.
func (g *Gateway) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return g.processEvent(ctx, event)
}

func (g *Gateway) processEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return g.completeCheckout(ctx, &sess)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return g.endSubscription(ctx, &sub)

	default:
		g.logger.Debug(ctx, "ignoring stripe event", "type", string(event.Type))
		return nil
	}
}

// completeCheckout activates the purchased plan and resets the free
// allowance. The customer-id match is primary; the metadata user id
// covers rows where the customer id was never persisted.
func (g *Gateway) completeCheckout(ctx context.Context, sess *stripe.CheckoutSession) error {
	tier, ok := tierFromPlanName(sess.Metadata["plan"])
	if !ok {
		return fmt.Errorf("checkout session %s has no recognizable plan metadata", sess.ID)
	}

	var customerID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	var subscriptionID string
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	if customerID != "" {
		n, err := g.users.ActivatePlanByCustomer(ctx, customerID, tier.Plan(), subscriptionID)
		if err != nil {
			return err
		}
		if n > 0 {
			g.logger.Info(ctx, "plan activated", "plan", string(tier.Plan()), "customer", customerID)
			return nil
		}
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		return fmt.Errorf("checkout session %s matched no user", sess.ID)
	}
	if err := g.users.ActivatePlanByUserID(ctx, userID, tier.Plan(), customerID, subscriptionID); err != nil {
		return err
	}
	g.logger.Info(ctx, "plan activated via metadata fallback", "plan", string(tier.Plan()), "user_id", userID)
	return nil
}

// endSubscription downgrades to the free plan. free_used is left as it
// was; ending a subscription does not refill the allowance.
func (g *Gateway) endSubscription(ctx context.Context, sub *stripe.Subscription) error {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}
	n, err := g.users.DowngradeByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		g.logger.Warn(ctx, "subscription ended for unknown customer", "customer", sub.Customer.ID)
		return nil
	}
	g.logger.Info(ctx, "plan downgraded", "customer", sub.Customer.ID)
	return nil
}
