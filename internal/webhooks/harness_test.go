package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lead-response/internal/agents"
	"lead-response/internal/calls"
	"lead-response/internal/identity"
	"lead-response/internal/leads"
	"lead-response/internal/usage"
	"lead-response/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type harness struct {
	calls  *calls.MemoryRepo
	leads  *leads.MemoryRepo
	usage  *usage.MemoryRepo
	router *gin.Engine
}

type secrets struct {
	retell, vapi, token string
}

func newHarness(t *testing.T, s secrets) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		calls: calls.NewMemoryRepo(),
		leads: leads.NewMemoryRepo(),
		usage: usage.NewMemoryRepo(),
	}
	clock := func() time.Time { return testNow }

	agentRepo := agents.NewMemoryRepo(agents.Setting{
		ID: "set1", OrganizationID: "org-vapi", Provider: calls.ProviderVapi, AgentID: "asst_1",
	})
	for _, l := range []leads.Lead{
		{ID: "lead1", OrganizationID: "org1", Phone: "+15551234567", PhoneNormalized: "+15551234567", Status: leads.StatusNew, CreatedAt: testNow},
		{ID: "lead2", OrganizationID: "org-vapi", CampaignID: "camp-v", Phone: "+15557654321", PhoneNormalized: "+15557654321", Status: leads.StatusNew, CreatedAt: testNow},
	} {
		_, err := h.leads.Create(context.Background(), l)
		require.NoError(t, err)
	}

	m := metrics.New(prometheus.NewRegistry())
	leadSvc := leads.NewService(h.leads, "US").WithClock(clock)
	ing := NewIngestor(
		identity.NewResolver(agentRepo, h.leads, nil),
		calls.NewRecorder(h.calls).WithClock(clock),
		usage.NewAccumulator(h.usage, usage.NewMemoryClaims(), time.UTC).WithClock(clock),
		leadSvc,
		m,
	)

	ph := ProviderHandler{Ingestor: ing, RetellSecret: s.retell, VapiSecret: s.vapi, Metrics: m}
	ah := NewAutomationHandler(leadSvc, h.calls, ing, m)

	r := gin.New()
	r.POST("/webhooks/retell", ph.HandleRetell)
	r.POST("/webhooks/vapi", ph.HandleVapi)
	r.POST("/webhooks/automation", RequireToken(s.token), ah.Handle)
	h.router = r
	return h
}

func (h *harness) post(path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) usageRows(t *testing.T, org string) []usage.Record {
	t.Helper()
	rows, err := h.usage.ListRange(context.Background(), org, testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	return rows
}

func (h *harness) lead(t *testing.T, id string) leads.Lead {
	t.Helper()
	l, err := h.leads.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (h *harness) call(t *testing.T, id string) calls.CallLog {
	t.Helper()
	c, err := h.calls.Get(context.Background(), id)
	require.NoError(t, err)
	return c
}
