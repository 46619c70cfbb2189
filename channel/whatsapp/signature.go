package whatsapp

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the Twilio webhook signature.
const SignatureHeader = "X-Twilio-Signature"

// ErrInvalidSignature is returned when a webhook signature does not verify.
var ErrInvalidSignature = errors.New("whatsapp: invalid webhook signature")

// Sign computes the base64 Twilio signature for a POST to webhookURL with params.
func Sign(authToken, webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)

	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature of a parsed webhook request against the public
// URL Twilio was configured to call.
func (c *Channel) Verify(r *http.Request, webhookURL string) error {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return ErrInvalidSignature
	}

	if err := r.ParseForm(); err != nil {
		return err
	}

	want := Sign(c.authToken, webhookURL, r.PostForm)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return ErrInvalidSignature
	}

	return nil
}
