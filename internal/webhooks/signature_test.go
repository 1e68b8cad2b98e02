package webhooks

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSignatureScheme_Verify(t *testing.T) {
	body := []byte(`{"event":"call_started"}`)
	sig := Sign(body, "s3cret")

	cases := []struct {
		name     string
		scheme   SignatureScheme
		provided string
		secret   string
		want     bool
	}{
		{"retell bare digest", RetellSignature, sig, "s3cret", true},
		{"retell uppercase digest", RetellSignature, strings.ToUpper(sig), "s3cret", true},
		{"retell rejects vapi prefix", RetellSignature, "sha256=" + sig, "s3cret", false},
		{"vapi prefixed digest", VapiSignature, "sha256=" + sig, "s3cret", true},
		{"vapi rejects bare digest", VapiSignature, sig, "s3cret", false},
		{"vapi rejects empty digest", VapiSignature, "sha256=", "s3cret", false},
		{"wrong secret", RetellSignature, sig, "other", false},
		{"missing signature", RetellSignature, "", "s3cret", false},
		{"not hex", RetellSignature, "not-hex", "s3cret", false},
		{"no secret fails open", VapiSignature, "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.scheme.Verify(body, tc.provided, tc.secret))
		})
	}

	assert.False(t, RetellSignature.Verify([]byte(`{"event":"call_ended"}`), sig, "s3cret"), "body is covered by the digest")
}

func TestVerifyToken(t *testing.T) {
	assert.True(t, VerifyToken("abc", "abc"))
	assert.False(t, VerifyToken("abd", "abc"))
	assert.False(t, VerifyToken("", "abc"))
	assert.True(t, VerifyToken("", ""))
}

func TestRequireToken_Sources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/hook", RequireToken("tok"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{"header", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			req.Header.Set(HeaderWebhookToken, "tok")
			return req
		}, http.StatusNoContent},
		{"bearer", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			req.Header.Set("Authorization", "Bearer tok")
			return req
		}, http.StatusNoContent},
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/hook?token=tok", nil)
		}, http.StatusNoContent},
		{"wrong", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			req.Header.Set(HeaderWebhookToken, "nope")
			return req
		}, http.StatusUnauthorized},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/hook", nil)
		}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, tc.req())
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
