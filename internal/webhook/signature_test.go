package webhook

import "testing"

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event_type":"contact.created","tenant":"salesforce"}`)

	first := Sign("secret", body)
	second := Sign("secret", body)
	if first != second {
		t.Errorf("signatures differ for identical input: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"data":{"id":"abc"}}`)
	sig := Sign("secret", body)

	if !Verify("secret", body, sig) {
		t.Error("valid signature rejected")
	}
	if Verify("wrong-secret", body, sig) {
		t.Error("signature accepted under wrong secret")
	}
	if Verify("secret", []byte(`{"data":{"id":"abd"}}`), sig) {
		t.Error("signature accepted for altered body")
	}
	if Verify("secret", body, sig[:63]+"0") {
		t.Error("tampered signature accepted")
	}
}
