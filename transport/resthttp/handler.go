package resthttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-linker/core"
	"github.com/goliatone/go-linker/providers/strava"
	"github.com/goliatone/go-linker/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultMaxBodyBytes int64 = 1 << 20

// LinkService is the service surface the REST handler drives.
type LinkService interface {
	BeginLink(ctx context.Context, req core.BeginLinkRequest) (core.BeginLinkResponse, error)
	HandleCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	CompleteLink(ctx context.Context, req core.CompleteLinkRequest) (core.LinkCompletion, error)
	LinkStatusFor(ctx context.Context, providerID string, scope core.ScopeRef) (core.LinkStatusView, error)
}

// Handler exposes the link handshake and webhook intake over HTTP.
//
// Token material never crosses this boundary: complete responses carry only
// the connected flag and the external account id, and callback redirects
// carry the raw provider parameters plus the opaque correlation state.
type Handler struct {
	Service            LinkService
	Processors         map[string]*webhooks.Processor
	StravaSubscription *strava.SubscriptionValidator
	Logger             glog.Logger
	MaxBodyBytes       int64
}

func New(service LinkService) *Handler {
	return &Handler{
		Service:      service,
		Processors:   map[string]*webhooks.Processor{},
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// RegisterProcessor mounts a webhook processor under /webhooks/{provider}.
func (h *Handler) RegisterProcessor(providerID string, processor *webhooks.Processor) {
	if h == nil || processor == nil {
		return
	}
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return
	}
	if h.Processors == nil {
		h.Processors = map[string]*webhooks.Processor{}
	}
	h.Processors[providerID] = processor
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/link/{provider}/begin", h.handleBegin)
	r.Get("/link/{provider}/callback", h.handleCallback)
	r.Post("/link/{provider}/complete", h.handleComplete)
	r.Get("/link/{provider}/status", h.handleStatus)
	r.Get("/webhooks/strava", h.handleStravaSubscription)
	r.Post("/webhooks/{provider}", h.handleWebhook)
	return r
}

func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, core.NotConfiguredError("resthttp: link service is not configured"))
		return
	}
	query := r.URL.Query()
	resp, err := h.Service.BeginLink(r.Context(), core.BeginLinkRequest{
		ProviderID:  chi.URLParam(r, "provider"),
		Scope:       core.ScopeRef{Type: query.Get("scope_type"), ID: query.Get("scope_id")},
		RedirectURI: query.Get("redirect_uri"),
		State:       query.Get("state"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, resp.URL, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, core.NotConfiguredError("resthttp: link service is not configured"))
		return
	}
	query := r.URL.Query()
	result, err := h.Service.HandleCallback(r.Context(), core.CallbackRequest{
		ProviderID: chi.URLParam(r, "provider"),
		Token:      query.Get("oauth_token"),
		Verifier:   query.Get("oauth_verifier"),
		Code:       query.Get("code"),
		State:      query.Get("state"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.TrimSpace(result.RedirectURI) == "" {
		writeJSON(w, http.StatusOK, callbackPayload(result))
		return
	}

	target, parseErr := url.Parse(result.RedirectURI)
	if parseErr != nil {
		writeError(w, core.NotConfiguredError("resthttp: stored redirect uri is invalid"))
		return
	}
	params := target.Query()
	params.Set("provider", result.ProviderID)
	if result.Token != "" {
		params.Set("oauth_token", result.Token)
	}
	if result.Verifier != "" {
		params.Set("oauth_verifier", result.Verifier)
	}
	if result.Code != "" {
		params.Set("code", result.Code)
	}
	if result.State != "" {
		params.Set("state", result.State)
	}
	if result.CallerState != "" {
		params.Set("caller_state", result.CallerState)
	}
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func callbackPayload(result core.CallbackResult) map[string]any {
	payload := map[string]any{
		"provider": result.ProviderID,
		"state":    result.State,
	}
	if result.Token != "" {
		payload["oauth_token"] = result.Token
	}
	if result.Verifier != "" {
		payload["oauth_verifier"] = result.Verifier
	}
	if result.Code != "" {
		payload["code"] = result.Code
	}
	if result.CallerState != "" {
		payload["caller_state"] = result.CallerState
	}
	return payload
}

type completeRequestBody struct {
	ScopeType   string `json:"scope_type"`
	ScopeID     string `json:"scope_id"`
	Token       string `json:"oauth_token"`
	Verifier    string `json:"oauth_verifier"`
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

type completeResponseBody struct {
	Connected      bool   `json:"connected"`
	ExternalUserID string `json:"external_user_id"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, core.NotConfiguredError("resthttp: link service is not configured"))
		return
	}
	var body completeRequestBody
	reader := http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	defer reader.Close()
	if err := json.NewDecoder(reader).Decode(&body); err != nil && err != io.EOF {
		writeError(w, core.MissingParametersError("resthttp: invalid json body"))
		return
	}

	completion, err := h.Service.CompleteLink(r.Context(), core.CompleteLinkRequest{
		ProviderID:  chi.URLParam(r, "provider"),
		Scope:       core.ScopeRef{Type: body.ScopeType, ID: body.ScopeID},
		Token:       body.Token,
		Verifier:    body.Verifier,
		Code:        body.Code,
		State:       body.State,
		RedirectURI: body.RedirectURI,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeResponseBody{
		Connected:      completion.Status.Connected,
		ExternalUserID: completion.Link.ExternalAccountID,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, core.NotConfiguredError("resthttp: link service is not configured"))
		return
	}
	query := r.URL.Query()
	view, err := h.Service.LinkStatusFor(r.Context(), chi.URLParam(r, "provider"), core.ScopeRef{
		Type: query.Get("scope_type"),
		ID:   query.Get("scope_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	payload := map[string]any{
		"connected":        view.Connected,
		"provider":         view.ProviderID,
		"external_user_id": view.ExternalAccountID,
	}
	if view.ExpiresAt != nil {
		payload["expires_at"] = view.ExpiresAt
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleWebhook reads the raw body before any parsing so signature
// verification sees exactly the bytes the provider signed. Rejections answer
// with a bare status, nothing that distinguishes bad signatures from bad
// timestamps.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(chi.URLParam(r, "provider"))
	processor := h.processorFor(providerID)
	if processor == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := processor.Process(r.Context(), core.InboundRequest{
		ProviderID: providerID,
		Surface:    "webhook",
		Headers:    flattenHeaders(r.Header),
		Query:      flattenQuery(r.URL.Query()),
		Body:       body,
	})
	if err != nil && result.StatusCode == 0 {
		h.logError(r.Context(), "webhook processing failed", "provider_id", providerID, "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !result.Accepted {
		if err != nil {
			h.logError(r.Context(), "webhook rejected", "provider_id", providerID, "error", err.Error())
		}
		w.WriteHeader(result.StatusCode)
		return
	}

	payload := result.Metadata
	if len(payload) == 0 {
		payload = map[string]any{"accepted": true}
	}
	writeJSON(w, result.StatusCode, payload)
}

func (h *Handler) handleStravaSubscription(w http.ResponseWriter, r *http.Request) {
	if h.StravaSubscription == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	challenge, err := h.StravaSubscription.Validate(r.Context(), flattenQuery(r.URL.Query()))
	if err != nil {
		h.logError(r.Context(), "strava subscription validation failed", "error", err.Error())
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

func (h *Handler) processorFor(providerID string) *webhooks.Processor {
	if h == nil || len(h.Processors) == 0 {
		return nil
	}
	return h.Processors[providerID]
}

func (h *Handler) maxBodyBytes() int64 {
	if h == nil || h.MaxBodyBytes <= 0 {
		return defaultMaxBodyBytes
	}
	return h.MaxBodyBytes
}

func (h *Handler) logError(ctx context.Context, message string, args ...any) {
	if h == nil || h.Logger == nil {
		return
	}
	h.Logger.WithContext(ctx).Error(message, args...)
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func flattenQuery(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for key, entries := range values {
		if len(entries) == 0 {
			continue
		}
		out[key] = entries[0]
	}
	return out
}
