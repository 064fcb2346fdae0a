package gateway

import (
	"github.com/homevault/payments/internal/infrastructure/config"
)

// NewRegistryFromConfig builds a registry with every provider that has
// credentials configured. Cash is always available.
func NewRegistryFromConfig(cfg config.GatewaysConfig) *Registry {
	r := NewRegistry(NewCashAdapter(cfg.Cash.ProcessingDelay))

	if cfg.Stripe.APIKey != "" {
		r.Register(NewStripeAdapter(StripeConfig{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			BaseURL:       cfg.Stripe.BaseURL,
		}))
	}
	if cfg.PayPal.ClientID != "" {
		r.Register(NewPayPalAdapter(PayPalConfig{
			ClientID:  cfg.PayPal.ClientID,
			Secret:    cfg.PayPal.Secret,
			WebhookID: cfg.PayPal.WebhookID,
			BaseURL:   cfg.PayPal.BaseURL,
		}))
	}
	if cfg.Razorpay.KeyID != "" {
		r.Register(NewRazorpayAdapter(RazorpayConfig{
			KeyID:         cfg.Razorpay.KeyID,
			KeySecret:     cfg.Razorpay.KeySecret,
			WebhookSecret: cfg.Razorpay.WebhookSecret,
			BaseURL:       cfg.Razorpay.BaseURL,
		}))
	}
	if cfg.Flutterwave.SecretKey != "" {
		r.Register(NewFlutterwaveAdapter(FlutterwaveConfig{
			SecretKey: cfg.Flutterwave.SecretKey,
			VerifHash: cfg.Flutterwave.VerifHash,
			BaseURL:   cfg.Flutterwave.BaseURL,
		}))
	}
	return r
}
