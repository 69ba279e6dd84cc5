package config

import "testing"

func TestEncryptSecretRoundTrips(t *testing.T) {
	t.Parallel()

	encoded, err := EncryptSecret("passphrase", "top-secret-value")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}

	decoded, err := DecryptSecret("passphrase", encoded)
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if decoded != "top-secret-value" {
		t.Fatalf("expected round trip to recover plaintext, got %q", decoded)
	}
}

func TestDecryptSecretRejectsWrongPassphrase(t *testing.T) {
	t.Parallel()

	encoded, err := EncryptSecret("correct", "value")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	if _, err := DecryptSecret("wrong", encoded); err == nil {
		t.Fatal("expected decryption with wrong passphrase to fail")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{"off": true, "error": true, "warn": true, "info": true, "debug": true, "bogus": false}
	for level, wantOK := range cases {
		_, err := ParseLogLevel(level)
		if (err == nil) != wantOK {
			t.Fatalf("ParseLogLevel(%q): err=%v, wantOK=%v", level, err, wantOK)
		}
	}
}
