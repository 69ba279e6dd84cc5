package signature

import "testing"

func TestSignIsDeterministic(t *testing.T) {
	t.Parallel()

	a := Sign("client-1", "UUID-A", "S1", "secret")
	b := Sign("client-1", "UUID-A", "S1", "secret")
	if a != b {
		t.Fatalf("expected deterministic signature, got %q and %q", a, b)
	}
	if a == "" {
		t.Fatal("expected non-empty signature")
	}
}

func TestSignDiffersOnInput(t *testing.T) {
	t.Parallel()

	base := Sign("client-1", "UUID-A", "S1", "secret")
	if base == Sign("client-2", "UUID-A", "S1", "secret") {
		t.Fatal("expected signature to depend on clientId")
	}
	if base == Sign("client-1", "UUID-B", "S1", "secret") {
		t.Fatal("expected signature to depend on meetingUuid")
	}
	if base == Sign("client-1", "UUID-A", "S2", "secret") {
		t.Fatal("expected signature to depend on streamId")
	}
}

func TestValidateURLIsIdempotent(t *testing.T) {
	t.Parallel()

	first := ValidateURL("abc123", "s")
	second := ValidateURL("abc123", "s")
	if first != second {
		t.Fatalf("expected identical validation response, got %+v and %+v", first, second)
	}
	if first.PlainToken != "abc123" {
		t.Fatalf("expected plainToken to be echoed, got %q", first.PlainToken)
	}
	if first.EncryptedToken == "" {
		t.Fatal("expected non-empty encrypted token")
	}
}

func TestVerifyWebhookRoundTrips(t *testing.T) {
	t.Parallel()

	secret := "s"
	timestamp := "1700000000"
	body := []byte(`{"event":"meeting.rtms_started"}`)

	header := "v0=" + hexHMAC(secret, "v0:"+timestamp+":"+string(body))
	if !VerifyWebhook(secret, timestamp, body, header) {
		t.Fatal("expected signature computed with the same scheme to verify")
	}
	if VerifyWebhook("wrong-secret", timestamp, body, header) {
		t.Fatal("expected mismatched secret to fail verification")
	}
	if VerifyWebhook(secret, timestamp, []byte("tampered"), header) {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"msg_type":2,"status_code":0,"media_server":{"server_urls":{"audio":"wss://a","transcript":"wss://t"}}}`)
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if env.MsgType != MsgSignalingHandshakeResponse {
		t.Fatalf("expected msg_type 2, got %d", env.MsgType)
	}
	if env.StatusCode == nil || *env.StatusCode != 0 {
		t.Fatalf("expected status_code 0, got %v", env.StatusCode)
	}
	if env.MediaServer == nil || env.MediaServer.ServerURLs["audio"] != "wss://a" {
		t.Fatalf("expected audio server url, got %+v", env.MediaServer)
	}
}
