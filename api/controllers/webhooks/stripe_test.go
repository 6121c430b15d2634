package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
)

type fakeWebhookService struct {
	err     error
	handled []string
}

func (f *fakeWebhookService) HandleEvent(_ context.Context, event *stripe.Event) error {
	f.handled = append(f.handled, event.ID)
	return f.err
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeGuard) Delete(_ context.Context, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	delete(f.seen, eventID)
	return nil
}

type fakeSigner struct {
	secret string
}

func (f fakeSigner) SigningSecret() string { return f.secret }

func eventPayload(id string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":"payment_intent.succeeded","data":{"object":{}}}`, id, stripe.APIVersion))
}

func signPayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postEvent(handler http.HandlerFunc, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStripeWebhookAcksHandlerFailure(t *testing.T) {
	svc := &fakeWebhookService{err: errors.New("downstream unavailable")}
	guard := newFakeGuard()
	handler := StripeWebhook(svc, fakeSigner{secret: "whsec_test"}, guard, nil)

	payload := eventPayload("evt_fail_1")
	rec := postEvent(handler, payload, signPayload("whsec_test", payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite handler failure, got %d", rec.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_fail_1" {
		t.Errorf("expected guard entry released, got %v", guard.deleted)
	}

	// The released entry lets a replayed delivery reach the handler again.
	svc.err = nil
	rec = postEvent(handler, payload, signPayload("whsec_test", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	if len(svc.handled) != 2 {
		t.Errorf("expected replay to be handled, got %d calls", len(svc.handled))
	}
}

func TestStripeWebhookDuplicateEventSkipsHandler(t *testing.T) {
	svc := &fakeWebhookService{}
	guard := newFakeGuard()
	handler := StripeWebhook(svc, fakeSigner{secret: "whsec_test"}, guard, nil)

	payload := eventPayload("evt_dup_1")
	for i := 0; i < 2; i++ {
		if rec := postEvent(handler, payload, signPayload("whsec_test", payload)); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if len(svc.handled) != 1 {
		t.Errorf("expected exactly one handled event, got %d", len(svc.handled))
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeWebhookService{}
	handler := StripeWebhook(svc, fakeSigner{secret: "whsec_test"}, newFakeGuard(), nil)

	payload := eventPayload("evt_bad_sig")
	if rec := postEvent(handler, payload, signPayload("whsec_other", payload)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad signature, got %d", rec.Code)
	}
	if rec := postEvent(handler, payload, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing signature, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Errorf("expected no events handled, got %d", len(svc.handled))
	}
}
