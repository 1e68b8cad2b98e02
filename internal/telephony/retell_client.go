package telephony

import (
	"context"
	"net/http"

	"lead-response/internal/calls"
)

// RetellProvider places calls through POST {base}/v2/create-phone-call.
type RetellProvider struct {
	client restClient
}

func NewRetellProvider(baseURL, apiKey string, hc *http.Client) *RetellProvider {
	return &RetellProvider{client: newRESTClient(calls.ProviderRetell, baseURL, apiKey, hc)}
}

func (p *RetellProvider) Name() calls.Provider { return calls.ProviderRetell }

type retellCreateCallRequest struct {
	FromNumber      string         `json:"from_number"`
	ToNumber        string         `json:"to_number"`
	OverrideAgentID string         `json:"override_agent_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type retellCreateCallResponse struct {
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
}

func (p *RetellProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	var out retellCreateCallResponse
	err := p.client.post(ctx, "/v2/create-phone-call", retellCreateCallRequest{
		FromNumber:      req.FromNumber,
		ToNumber:        req.ToNumber,
		OverrideAgentID: req.AgentID,
		Metadata:        req.Metadata(),
	}, &out)
	if err != nil {
		return PlaceCallResult{}, err
	}
	if out.CallID == "" {
		return PlaceCallResult{}, &ProviderError{Provider: calls.ProviderRetell, StatusCode: http.StatusBadGateway, Message: "response missing call_id"}
	}
	return PlaceCallResult{ProviderCallID: out.CallID, Status: out.CallStatus}, nil
}
