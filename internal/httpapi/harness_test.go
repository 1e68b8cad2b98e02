package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lead-response/internal/agents"
	"lead-response/internal/audit"
	"lead-response/internal/auth"
	"lead-response/internal/billing"
	"lead-response/internal/calls"
	"lead-response/internal/config"
	"lead-response/internal/leads"
	"lead-response/internal/rbac"
	"lead-response/internal/reporting"
	"lead-response/internal/telephony"
	"lead-response/internal/usage"
	"lead-response/internal/webhooks"
	"lead-response/pkg/metrics"
	"lead-response/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var apiNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

const automationToken = "tok"

// providerStub answers both the Retell and the Vapi create-call endpoints.
type providerStub struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []map[string]any
}

func (p *providerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var got map[string]any
	_ = json.NewDecoder(r.Body).Decode(&got)

	p.mu.Lock()
	p.requests = append(p.requests, got)
	status, body := p.status, p.body
	p.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/call" {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"v_1","status":"queued"}`))
		return
	}
	_, _ = w.Write([]byte(`{"call_id":"call_abc","call_status":"registered"}`))
}

func (p *providerStub) fail(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.body = status, body
}

func (p *providerStub) last() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func (p *providerStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type apiHarness struct {
	calls    *calls.MemoryRepo
	usage    *usage.MemoryRepo
	audit    *audit.MemoryRepo
	slots    *billing.CallSlots
	mr       *miniredis.Miniredis
	provider *providerStub
	auth     *auth.Manager
	router   *gin.Engine
}

type harnessOptions struct {
	plan         billing.Plan
	ratePerMin   int
	burst        int
	usageMinutes float64
}

func newAPIHarness(t *testing.T, opts harnessOptions) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	clock := func() time.Time { return apiNow }

	if opts.plan == "" {
		opts.plan = billing.PlanGrowth
	}
	if opts.ratePerMin == 0 {
		opts.ratePerMin, opts.burst = 600, 100
	}

	h := &apiHarness{
		calls:    calls.NewMemoryRepo(),
		usage:    usage.NewMemoryRepo(),
		audit:    audit.NewMemoryRepo(),
		mr:       miniredis.RunT(t),
		provider: &providerStub{},
	}

	leadRepo := leads.NewMemoryRepo()
	for _, l := range []leads.Lead{
		{ID: "lead1", OrganizationID: "org1", CampaignID: "camp1", Phone: "(650) 253-0000", PhoneNormalized: "+16502530000", Status: leads.StatusNew, CreatedAt: apiNow},
		{ID: "lead-other", OrganizationID: "org2", Phone: "+16502530002", PhoneNormalized: "+16502530002", Status: leads.StatusNew, CreatedAt: apiNow},
	} {
		_, err := leadRepo.Create(ctx, l)
		require.NoError(t, err)
	}
	agentRepo := agents.NewMemoryRepo(
		agents.Setting{ID: "s1", OrganizationID: "org1", Provider: calls.ProviderRetell, AgentID: "agent_r", FromNumber: "+16502530001", IsDefault: true},
		agents.Setting{ID: "s2", OrganizationID: "org1", Provider: calls.ProviderVapi, AgentID: "asst_v", PhoneNumberID: "pn_1"},
		agents.Setting{ID: "s3", OrganizationID: "org2", Provider: calls.ProviderRetell, AgentID: "agent_other"},
	)
	if opts.usageMinutes > 0 {
		_, err := h.usage.Add(ctx, usage.Record{
			OrganizationID: "org1", UsageDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Provider: calls.ProviderRetell, MinutesUsed: opts.usageMinutes, CallsMade: 1,
		})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(h.provider)
	t.Cleanup(srv.Close)
	registry := telephony.NewRegistry(
		telephony.NewRetellProvider(srv.URL, "rk", srv.Client()),
		telephony.NewVapiProvider(srv.URL, "vk", srv.Client()),
	)

	rdb := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h.slots = billing.NewCallSlots(rdb, time.Hour)

	orgs := billing.NewMemoryOrganizations(
		billing.Organization{ID: "org1", Plan: opts.plan},
		billing.Organization{ID: "org2", Plan: billing.PlanGrowth},
	)
	limiter := billing.NewLimiter(orgs, h.usage, time.UTC).WithClock(clock)

	am, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	h.auth = am

	hd := Handlers{
		Leads:         leadRepo,
		Agents:        agentRepo,
		Calls:         h.calls,
		Providers:     registry,
		Slots:         h.slots,
		Allowance:     limiter,
		Reports:       reporting.NewService(h.calls, h.usage),
		Aggregator:    usage.NewAggregator(h.calls, h.usage, time.UTC).WithClock(clock),
		Audit:         audit.NewService(h.audit),
		Metrics:       metrics.New(prometheus.NewRegistry()),
		Location:      time.UTC,
		DefaultRegion: "US",
		Now:           clock,
	}

	r := gin.New()
	v1 := r.Group("/v1", auth.RequireAccessToken(am), rbac.RequireOrganization())
	v1.POST("/calls/initiate",
		rbac.RequireAnyRole(rbac.CallPlacers...),
		utils.RateLimit(utils.NewKeyedLimiter(opts.ratePerMin, opts.burst), OrganizationKey),
		billing.RequireMinutesRemaining(limiter),
		hd.InitiateCall,
	)
	v1.GET("/usage", rbac.RequireAnyRole(rbac.UsageReaders...), hd.GetUsage)
	v1.GET("/reports/calls", rbac.RequireAnyRole(rbac.UsageReaders...), hd.GetCallsReport)
	r.POST("/usage/aggregate", webhooks.RequireToken(automationToken), hd.AggregateUsage)
	h.router = r
	return h
}

func (h *apiHarness) token(t *testing.T, org, role string) string {
	t.Helper()
	pair, err := h.auth.IssuePair(time.Now(), "user1", org, role)
	require.NoError(t, err)
	return pair.AccessToken
}

func (h *apiHarness) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
