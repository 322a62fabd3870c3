package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultAerisURL = "https://api.aerisapi.com"

// AerisProvider implements Provider for the Aeris weather API.
type AerisProvider struct {
	name         string
	clientID     string
	clientSecret string
	baseURL      string
	api          *apiClient
}

func NewAerisProvider(cfg HTTPClientConfig, clientID, clientSecret string) *AerisProvider {
	return &AerisProvider{
		name:         "aeris",
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      defaultAerisURL,
		api:          newAPIClient("aeris", cfg, checkAeris),
	}
}

// WithBaseURL points the provider at another API host.
func (p *AerisProvider) WithBaseURL(u string) *AerisProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *AerisProvider) Name() string {
	return p.name
}

// aerisResponse is the envelope every Aeris endpoint answers with.
type aerisResponse struct {
	Success bool `json:"success"`
	Error   *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
	Response json.RawMessage `json:"response"`
}

func (p *AerisProvider) Forecast(ctx context.Context, loc Location) ([]Period, []byte, error) {
	values := url.Values{}
	values.Set("format", "json")
	values.Set("filter", "day")
	values.Set("limit", "7")

	raw, err := p.call(ctx, "forecasts", loc, values)
	if err != nil {
		return nil, nil, err
	}

	var sets []struct {
		Periods []Period `json:"periods"`
	}
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, raw, fmt.Errorf("decode aeris forecast: %w", err)
	}
	if len(sets) == 0 {
		return nil, raw, nil
	}
	return sets[0].Periods, raw, nil
}

func (p *AerisProvider) Current(ctx context.Context, loc Location) (Observation, error) {
	values := url.Values{}
	values.Set("format", "json")
	values.Set("filter", "allstations")
	values.Set("limit", "1")

	raw, err := p.call(ctx, "observations", loc, values)
	if err != nil {
		return Observation{}, err
	}

	var payload struct {
		Ob Observation `json:"ob"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Observation{}, fmt.Errorf("decode aeris observation: %w", err)
	}
	return payload.Ob, nil
}

// call performs one request and returns the "response" member of a
// successful answer.
func (p *AerisProvider) call(ctx context.Context, endpoint string, loc Location, values url.Values) (json.RawMessage, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return nil, fmt.Errorf("aeris credentials are not configured")
	}
	values.Set("client_id", p.clientID)
	values.Set("client_secret", p.clientSecret)

	body, err := p.api.get(ctx, fmt.Sprintf("%s/%s/%s?%s", p.baseURL, endpoint, loc.Key(), values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("aeris %s: %w", endpoint, err)
	}
	var payload aerisResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode aeris %s response: %w", endpoint, err)
	}
	return payload.Response, nil
}

// checkAeris turns a "success": false answer into an *APIError. Aeris
// reports bad credentials and unknown places this way with status 200.
func checkAeris(body []byte) error {
	var payload aerisResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return &APIError{Provider: "aeris", Status: http.StatusOK, Message: "malformed response: " + err.Error()}
	}
	if payload.Success {
		return nil
	}
	apiErr := &APIError{Provider: "aeris", Status: http.StatusOK, Message: "unknown error"}
	if payload.Error != nil {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Description
	}
	return apiErr
}
