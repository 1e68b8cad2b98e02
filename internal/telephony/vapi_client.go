package telephony

import (
	"context"
	"net/http"

	"lead-response/internal/calls"
)

// VapiProvider places calls through POST {base}/call.
type VapiProvider struct {
	client restClient
}

func NewVapiProvider(baseURL, apiKey string, hc *http.Client) *VapiProvider {
	return &VapiProvider{client: newRESTClient(calls.ProviderVapi, baseURL, apiKey, hc)}
}

func (p *VapiProvider) Name() calls.Provider { return calls.ProviderVapi }

type vapiCreateCallRequest struct {
	AssistantID   string         `json:"assistantId"`
	PhoneNumberID string         `json:"phoneNumberId"`
	Customer      VapiCustomer   `json:"customer"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type vapiCreateCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (p *VapiProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	var out vapiCreateCallResponse
	err := p.client.post(ctx, "/call", vapiCreateCallRequest{
		AssistantID:   req.AgentID,
		PhoneNumberID: req.PhoneNumberID,
		Customer:      VapiCustomer{Number: req.ToNumber},
		Metadata:      req.Metadata(),
	}, &out)
	if err != nil {
		return PlaceCallResult{}, err
	}
	if out.ID == "" {
		return PlaceCallResult{}, &ProviderError{Provider: calls.ProviderVapi, StatusCode: http.StatusBadGateway, Message: "response missing id"}
	}
	return PlaceCallResult{ProviderCallID: out.ID, Status: out.Status}, nil
}
