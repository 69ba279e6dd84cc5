// Package signature computes and verifies the HMAC-SHA256 signatures used
// by the RTMS handshake protocol and webhook delivery.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Sign computes the handshake signature the vendor expects on both
// signaling and media handshakes: hex(HMAC-SHA256("<clientId>,<meetingUuid>,<streamId>", secret)).
func Sign(clientID, meetingUUID, streamID, secret string) string {
	message := fmt.Sprintf("%s,%s,%s", clientID, meetingUUID, streamID)
	return hexHMAC(secret, message)
}

// URLValidationResponse answers a webhook `endpoint.url_validation` event:
// {plainToken, encryptedToken} where encryptedToken is
// hex(HMAC-SHA256(plainToken, secretToken)).
type URLValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// ValidateURL answers the vendor's endpoint ownership challenge. Recomputing
// the response for the same plainToken is required to be byte-identical.
func ValidateURL(plainToken, secretToken string) URLValidationResponse {
	return URLValidationResponse{
		PlainToken:     plainToken,
		EncryptedToken: hexHMAC(secretToken, plainToken),
	}
}

// VerifyWebhook checks a non-validation webhook delivery against the
// `v0:<timestamp>:<rawBody>` HMAC scheme. header is the full
// "v0=<hex>" signature header value.
func VerifyWebhook(secretToken, timestamp string, rawBody []byte, header string) bool {
	expected := "v0=" + hexHMAC(secretToken, fmt.Sprintf("v0:%s:%s", timestamp, rawBody))
	return hmac.Equal([]byte(strings.TrimSpace(header)), []byte(expected))
}

func hexHMAC(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
