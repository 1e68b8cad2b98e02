package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Signature headers.
const (
	HeaderRetellSignature = "x-retell-signature"
	HeaderVapiSignature   = "x-vapi-signature"
	HeaderWebhookToken    = "x-webhook-token"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureScheme is one provider's signature header convention.
type SignatureScheme struct {
	Header string
	// Prefix must precede the hex digest exactly; empty means a bare digest.
	Prefix string
}

var (
	RetellSignature = SignatureScheme{Header: HeaderRetellSignature}
	VapiSignature   = SignatureScheme{Header: HeaderVapiSignature, Prefix: "sha256="}
)

// Verify checks provided against the HMAC of the exact raw body, in this scheme's format only.
// An empty secret disables the check.
func (s SignatureScheme) Verify(body []byte, provided, secret string) bool {
	if secret == "" {
		return true
	}
	provided = strings.TrimSpace(provided)
	if s.Prefix != "" {
		digest, ok := strings.CutPrefix(provided, s.Prefix)
		if !ok {
			return false
		}
		provided = digest
	}
	if provided == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// VerifyToken compares a shared token in constant time. An empty token disables the check.
func VerifyToken(provided, token string) bool {
	if token == "" {
		return true
	}
	if provided == "" {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(token))
}

// TokenFrom reads the automation token from x-webhook-token, a Bearer header, or ?token=.
func TokenFrom(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderWebhookToken)); v != "" {
		return v
	}
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

// RequireToken guards internal automation endpoints with the shared token.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !VerifyToken(TokenFrom(c), token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
		c.Next()
	}
}
