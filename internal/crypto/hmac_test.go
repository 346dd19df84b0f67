package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHeadersAtDeterministic(t *testing.T) {
	auth := HMACAuth{Key: "test-api-key", Secret: "test-api-secret"}
	payload := `{"category":"linear","symbol":"BTCUSDT"}`
	const ts = int64(1700000000000)

	headers := auth.HeadersAt(payload, ts)

	if headers["X-BAPI-API-KEY"] != "test-api-key" {
		t.Errorf("X-BAPI-API-KEY = %q", headers["X-BAPI-API-KEY"])
	}
	if headers["X-BAPI-TIMESTAMP"] != "1700000000000" {
		t.Errorf("X-BAPI-TIMESTAMP = %q", headers["X-BAPI-TIMESTAMP"])
	}
	if headers["X-BAPI-RECV-WINDOW"] != "5000" {
		t.Errorf("X-BAPI-RECV-WINDOW = %q", headers["X-BAPI-RECV-WINDOW"])
	}

	// Recompute the expected signature from the documented formula:
	// hex(HMAC-SHA256(secret, timestamp + key + recvWindow + payload)).
	mac := hmac.New(sha256.New, []byte("test-api-secret"))
	mac.Write([]byte("1700000000000" + "test-api-key" + "5000" + payload))
	want := hex.EncodeToString(mac.Sum(nil))

	if headers["X-BAPI-SIGN"] != want {
		t.Errorf("X-BAPI-SIGN = %q, want %q", headers["X-BAPI-SIGN"], want)
	}

	// Same inputs, same signature.
	again := auth.HeadersAt(payload, ts)
	if again["X-BAPI-SIGN"] != headers["X-BAPI-SIGN"] {
		t.Error("signature must be deterministic for fixed timestamp")
	}
}

func TestHeadersAtSignatureVariesWithPayload(t *testing.T) {
	auth := HMACAuth{Key: "k", Secret: "s"}
	const ts = int64(1700000000000)

	a := auth.HeadersAt("payload-a", ts)
	b := auth.HeadersAt("payload-b", ts)
	if a["X-BAPI-SIGN"] == b["X-BAPI-SIGN"] {
		t.Error("different payloads must not share a signature")
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := HMACAuth{Key: "supersecretkey", Secret: "supersecretvalue"}
	s := auth.String()
	if strings.Contains(s, "supersecretkey") || strings.Contains(s, "supersecretvalue") {
		t.Errorf("String() leaked credentials: %s", s)
	}
	if !strings.Contains(s, "supe****") {
		t.Errorf("String() = %q, want redacted prefix form", s)
	}
}
