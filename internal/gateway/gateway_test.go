package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/homevault/payments/internal/domain/errors"
	"github.com/homevault/payments/internal/domain/payment"
)

func stripeSign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStripeVerifySignature_Valid(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"})
	body := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, stripeSign("whsec_test", ts, body)))

	assert.True(t, a.VerifySignature(context.Background(), body, header))
}

func TestStripeVerifySignature_TamperedBody(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"})
	body := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, stripeSign("whsec_test", ts, body)))

	assert.False(t, a.VerifySignature(context.Background(), []byte(`{"id":"evt_2"}`), header))
}

func TestStripeVerifySignature_WrongSecret(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"})
	body := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, stripeSign("whsec_other", ts, body)))

	assert.False(t, a.VerifySignature(context.Background(), body, header))
}

func TestStripeVerifySignature_StaleTimestamp(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"})
	body := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Add(-time.Hour).Unix()

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, stripeSign("whsec_test", ts, body)))

	assert.False(t, a.VerifySignature(context.Background(), body, header))
}

func TestStripeVerifySignature_MissingHeader(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{WebhookSecret: "whsec_test"})
	assert.False(t, a.VerifySignature(context.Background(), []byte(`{}`), http.Header{}))
}

func TestStripeParseEvent(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{})
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"payment_id":"%s"}}}}`,
		paymentID,
	))

	event, err := a.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Equal(t, paymentID, event.PaymentID)
	assert.Equal(t, "pi_1", event.GatewayTransactionID)
}

func TestStripeParseEvent_BadPaymentID(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{})
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"payment_id":"garbage"}}}}`)

	_, err := a.ParseEvent(body)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}

func TestStripeParseEvent_InvalidJSON(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{})
	_, err := a.ParseEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}

func TestStripeMapEventToStatus(t *testing.T) {
	a := NewStripeAdapter(StripeConfig{})

	assert.Equal(t, payment.StatusCaptured, a.MapEventToStatus("payment_intent.succeeded"))
	assert.Equal(t, payment.StatusFailed, a.MapEventToStatus("payment_intent.payment_failed"))
	assert.Equal(t, payment.StatusFailed, a.MapEventToStatus("charge.dispute.created"))
	assert.Equal(t, payment.StatusCancelled, a.MapEventToStatus("payment_intent.canceled"))
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("payment_intent.processing"))
	// Unknown event types never fail the payment.
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("some.future.event"))
}

func TestRazorpayVerifySignature(t *testing.T) {
	a := NewRazorpayAdapter(RazorpayConfig{WebhookSecret: "rzp_secret"})
	body := []byte(`{"event":"payment.captured"}`)

	mac := hmac.New(sha256.New, []byte("rzp_secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	header := http.Header{}
	header.Set("X-Razorpay-Signature", sig)
	assert.True(t, a.VerifySignature(context.Background(), body, header))

	assert.False(t, a.VerifySignature(context.Background(), []byte(`{"event":"tampered"}`), header))

	header.Set("X-Razorpay-Signature", "not-hex")
	assert.False(t, a.VerifySignature(context.Background(), body, header))
}

func TestRazorpayParseEvent(t *testing.T) {
	a := NewRazorpayAdapter(RazorpayConfig{})
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","notes":{"payment_id":"%s"}}}}}`,
		paymentID,
	))

	event, err := a.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "pay_1:payment.captured", event.ID)
	assert.Equal(t, paymentID, event.PaymentID)
	assert.Equal(t, "pay_1", event.GatewayTransactionID)
}

func TestRazorpayMapEventToStatus(t *testing.T) {
	a := NewRazorpayAdapter(RazorpayConfig{})

	assert.Equal(t, payment.StatusCaptured, a.MapEventToStatus("payment.captured"))
	assert.Equal(t, payment.StatusCaptured, a.MapEventToStatus("order.paid"))
	assert.Equal(t, payment.StatusFailed, a.MapEventToStatus("payment.failed"))
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("payment.authorized"))
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("unknown.event"))
}

func TestPayPalParseEvent_CaptureEvent(t *testing.T) {
	a := NewPayPalAdapter(PayPalConfig{})
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap_1","custom_id":"%s"}}`,
		paymentID,
	))

	event, err := a.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "WH-1", event.ID)
	assert.Equal(t, "PAYMENT.CAPTURE.COMPLETED", event.Type)
	assert.Equal(t, paymentID, event.PaymentID)
	assert.Equal(t, "cap_1", event.GatewayTransactionID)
}

func TestPayPalParseEvent_OrderEventNestsCustomID(t *testing.T) {
	a := NewPayPalAdapter(PayPalConfig{})
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"id":"WH-2","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ord_1","purchase_units":[{"custom_id":"%s"}]}}`,
		paymentID,
	))

	event, err := a.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, paymentID, event.PaymentID)
	assert.Equal(t, "ord_1", event.GatewayTransactionID)
}

func TestPayPalParseEvent_BadCustomID(t *testing.T) {
	a := NewPayPalAdapter(PayPalConfig{})
	body := []byte(`{"id":"WH-3","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap_1","custom_id":"not-a-uuid"}}`)

	_, err := a.ParseEvent(body)
	assert.ErrorIs(t, err, domainErrors.ErrMalformedEvent)
}

func TestPayPalMapEventToStatus(t *testing.T) {
	a := NewPayPalAdapter(PayPalConfig{})

	assert.Equal(t, payment.StatusCaptured, a.MapEventToStatus("PAYMENT.CAPTURE.COMPLETED"))
	assert.Equal(t, payment.StatusFailed, a.MapEventToStatus("PAYMENT.CAPTURE.DENIED"))
	assert.Equal(t, payment.StatusFailed, a.MapEventToStatus("PAYMENT.CAPTURE.DECLINED"))
	assert.Equal(t, payment.StatusCancelled, a.MapEventToStatus("CHECKOUT.ORDER.VOIDED"))
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("CHECKOUT.ORDER.APPROVED"))
	assert.Equal(t, payment.StatusPending, a.MapEventToStatus("UNKNOWN.EVENT"))
}

func TestPayPalVerifySignature_MissingTransmissionHeaders(t *testing.T) {
	a := NewPayPalAdapter(PayPalConfig{WebhookID: "wh_1"})
	// Every transmission header is required before the verify API is called.
	assert.False(t, a.VerifySignature(context.Background(), []byte(`{}`), http.Header{}))
}

func TestFlutterwaveVerifySignature(t *testing.T) {
	a := NewFlutterwaveAdapter(FlutterwaveConfig{VerifHash: "fw_hash"})

	header := http.Header{}
	header.Set("Verif-Hash", "fw_hash")
	assert.True(t, a.VerifySignature(context.Background(), nil, header))

	header.Set("Verif-Hash", "wrong")
	assert.False(t, a.VerifySignature(context.Background(), nil, header))

	assert.False(t, a.VerifySignature(context.Background(), nil, http.Header{}))
}

func TestFlutterwaveVerifySignature_NoConfiguredHash(t *testing.T) {
	a := NewFlutterwaveAdapter(FlutterwaveConfig{})
	header := http.Header{}
	header.Set("Verif-Hash", "")
	assert.False(t, a.VerifySignature(context.Background(), nil, header))
}

func TestFlutterwaveParseEvent(t *testing.T) {
	a := NewFlutterwaveAdapter(FlutterwaveConfig{})
	paymentID := uuid.New()
	body := []byte(fmt.Sprintf(
		`{"event":"charge.completed","data":{"id":12345,"tx_ref":"%s","status":"successful"}}`,
		paymentID,
	))

	event, err := a.ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, paymentID.String()+":charge.completed", event.ID)
	assert.Equal(t, paymentID, event.PaymentID)
	assert.Equal(t, "12345", event.GatewayTransactionID)
}

func TestFlutterwaveCapture_Unsupported(t *testing.T) {
	a := NewFlutterwaveAdapter(FlutterwaveConfig{})
	_, err := a.Capture(context.Background(), CaptureRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedOperation)
}

func TestCashCharge(t *testing.T) {
	a := NewCashAdapter(0)
	result, err := a.Charge(context.Background(), Request{PaymentID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCaptured, result.Status)
	assert.NotEmpty(t, result.GatewayTransactionID)
}

func TestCashCharge_ContextCancelled(t *testing.T) {
	a := NewCashAdapter(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Charge(ctx, Request{PaymentID: uuid.New()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCashCaptureAndIntent_Unsupported(t *testing.T) {
	a := NewCashAdapter(0)

	_, err := a.Capture(context.Background(), CaptureRequest{})
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedOperation)

	_, err = a.CreateIntent(context.Background(), Request{})
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedOperation)
}

func TestRegistry_GetUnknownProvider(t *testing.T) {
	r := NewRegistry(NewCashAdapter(0))

	adapter, breaker, err := r.Get(payment.ProviderCash)
	require.NoError(t, err)
	assert.NotNil(t, adapter)
	assert.NotNil(t, breaker)

	_, _, err = r.Get(payment.ProviderStripe)
	assert.ErrorIs(t, err, domainErrors.ErrUnsupportedGateway)
}

func TestSanitize(t *testing.T) {
	payload := map[string]any{
		"id":         "pi_123",
		"cardNumber": "4111111111111111",
		"card_no":    "4242424242424242",
		"cvv":        "123",
		"customer": map[string]any{
			"name":           "Jordan",
			"account_number": "987654",
		},
		"charges": []any{
			map[string]any{"token": "tok_1", "amount": float64(100)},
		},
	}

	got := Sanitize(payload)

	assert.Equal(t, "pi_123", got["id"])
	assert.Equal(t, RedactionMarker, got["cardNumber"])
	assert.Equal(t, RedactionMarker, got["card_no"])
	assert.Equal(t, RedactionMarker, got["cvv"])

	customer := got["customer"].(map[string]any)
	assert.Equal(t, "Jordan", customer["name"])
	assert.Equal(t, RedactionMarker, customer["account_number"])

	charge := got["charges"].([]any)[0].(map[string]any)
	assert.Equal(t, RedactionMarker, charge["token"])
	assert.Equal(t, float64(100), charge["amount"])

	// Input is untouched.
	assert.Equal(t, "4111111111111111", payload["cardNumber"])
}

func TestSanitize_Nil(t *testing.T) {
	assert.Nil(t, Sanitize(nil))
}

func TestMinorToDecimalString(t *testing.T) {
	assert.Equal(t, "100.50", minorToDecimalString(10_050))
	assert.Equal(t, "0.05", minorToDecimalString(5))
	assert.Equal(t, "-3.25", minorToDecimalString(-325))
}
