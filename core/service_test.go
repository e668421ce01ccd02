package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBeginLink_KeepsTemporarySecretOutOfResponse(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{
		id:       "garmin",
		authKind: AuthKindOAuth1,
		temporary: TemporaryCredential{
			Token:       "tmp-token",
			TokenSecret: "tmp-secret",
			IssuedAt:    time.Now().UTC(),
		},
	}
	store := NewMemoryHandshakeStore(time.Minute)
	svc := newTestService(t, provider, WithHandshakeStore(store))

	resp, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID:  "garmin",
		Scope:       ScopeRef{Type: "user", ID: "u1"},
		RedirectURI: "https://app.example/link/garmin/callback",
		State:       "caller-state",
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}
	if strings.Contains(resp.URL, "tmp-secret") || strings.Contains(resp.State, "tmp-secret") {
		t.Fatalf("temporary secret leaked into begin response: %+v", resp)
	}

	record, err := store.Peek(ctx, "tmp-token")
	if err != nil {
		t.Fatalf("peek handshake record: %v", err)
	}
	if record.TokenSecret != "tmp-secret" {
		t.Fatalf("expected stored token secret, got %q", record.TokenSecret)
	}
	if record.CallerState != "caller-state" {
		t.Fatalf("expected caller state preserved, got %q", record.CallerState)
	}
}

func TestBeginLink_UnknownProviderMakesNoProviderCall(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "strava"}
	svc := newTestService(t, provider)

	_, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "garmin",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
	})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("expected provider not registered error, got %v", err)
	}
	if provider.beginCalls != 0 {
		t.Fatalf("expected no provider calls, got %d", provider.beginCalls)
	}
}

func TestHandleCallback_MissingVerifierNeverReachesProvider(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "garmin", authKind: AuthKindOAuth1}
	svc := newTestService(t, provider)

	_, err := svc.HandleCallback(ctx, CallbackRequest{
		ProviderID: "garmin",
		Token:      "tmp-token",
	})
	if err == nil || !strings.Contains(err.Error(), "verifier") {
		t.Fatalf("expected missing verifier error, got %v", err)
	}
	if provider.completeCalls != 0 {
		t.Fatalf("callback must not run the exchange leg, got %d calls", provider.completeCalls)
	}
}

func TestHandleCallback_RejectsTamperedState(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "strava"}
	svc := newTestService(t, provider)

	resp, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		State:      "caller-state",
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}

	tampered := resp.State[:len(resp.State)-2] + "xx"
	_, err = svc.HandleCallback(ctx, CallbackRequest{
		ProviderID: "strava",
		Code:       "auth-code",
		State:      tampered,
	})
	if err == nil || !strings.Contains(err.Error(), "correlation state") {
		t.Fatalf("expected state decode failure, got %v", err)
	}
}

func TestOAuth1FlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{
		id:       "garmin",
		authKind: AuthKindOAuth1,
		temporary: TemporaryCredential{
			Token:       "tmp-token",
			TokenSecret: "tmp-secret",
		},
	}
	credStore := newMemoryCredentialStore()
	svc := newTestService(t, provider, WithCredentialStore(credStore))

	begin, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "garmin",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		State:      "caller-state",
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}

	callback, err := svc.HandleCallback(ctx, CallbackRequest{
		ProviderID: "garmin",
		Token:      "tmp-token",
		Verifier:   "verifier-1",
		State:      begin.State,
	})
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if callback.CallerState != "caller-state" {
		t.Fatalf("expected caller state back, got %q", callback.CallerState)
	}
	if provider.completeCalls != 0 {
		t.Fatalf("callback must not run the exchange leg")
	}

	completion, err := svc.CompleteLink(ctx, CompleteLinkRequest{
		ProviderID: "garmin",
		Scope:      callback.Scope,
		Token:      callback.Token,
		Verifier:   callback.Verifier,
		State:      callback.State,
	})
	if err != nil {
		t.Fatalf("complete link: %v", err)
	}
	if provider.lastCompleteAuthRequest.TokenSecret != "tmp-secret" {
		t.Fatalf("expected stored token secret passed to exchange, got %q", provider.lastCompleteAuthRequest.TokenSecret)
	}
	if !completion.Status.Connected {
		t.Fatalf("expected connected status view")
	}
	if completion.Status.ExternalAccountID != "acct_1" {
		t.Fatalf("expected external account id, got %q", completion.Status.ExternalAccountID)
	}
	if completion.Link.Status != LinkStatusActive {
		t.Fatalf("expected active link, got %q", completion.Link.Status)
	}

	stored, payload, err := credStore.GetActiveByLink(ctx, completion.Link.ID)
	if err != nil {
		t.Fatalf("load stored credential: %v", err)
	}
	if stored.Status != CredentialStatusActive {
		t.Fatalf("expected active credential, got %q", stored.Status)
	}
	if !strings.HasPrefix(string(payload), "enc:") {
		t.Fatalf("expected encrypted payload, got %q", string(payload))
	}
	if strings.Contains(string(payload), "access-token-1") {
		t.Fatalf("plaintext token in stored payload")
	}
}

func TestCompleteLink_SecondAttemptFailsAfterConsume(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{
		id:        "garmin",
		authKind:  AuthKindOAuth1,
		temporary: TemporaryCredential{Token: "tmp-token", TokenSecret: "tmp-secret"},
	}
	svc := newTestService(t, provider)

	begin, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "garmin",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}

	req := CompleteLinkRequest{
		ProviderID: "garmin",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		Token:      "tmp-token",
		Verifier:   "verifier-1",
		State:      begin.State,
	}
	if _, err := svc.CompleteLink(ctx, req); err != nil {
		t.Fatalf("complete link: %v", err)
	}
	if _, err := svc.CompleteLink(ctx, req); err == nil {
		t.Fatalf("expected replayed completion to fail")
	}
}

func TestRefresh_PersistsRotatedCredential(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "strava"}
	credStore := newMemoryCredentialStore()
	svc := newTestService(t, provider, WithCredentialStore(credStore))

	begin, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}
	completion, err := svc.CompleteLink(ctx, CompleteLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		Code:       "auth-code",
		State:      begin.State,
	})
	if err != nil {
		t.Fatalf("complete link: %v", err)
	}

	if _, err := svc.Refresh(ctx, RefreshRequest{
		ProviderID: "strava",
		LinkID:     completion.Link.ID,
	}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if provider.refreshCalls != 1 {
		t.Fatalf("expected one refresh call, got %d", provider.refreshCalls)
	}

	stored, payload, err := credStore.GetActiveByLink(ctx, completion.Link.ID)
	if err != nil {
		t.Fatalf("load stored credential: %v", err)
	}
	if stored.Version != 2 {
		t.Fatalf("expected rotated credential version 2, got %d", stored.Version)
	}
	plaintext, err := testSecretProvider{}.Decrypt(ctx, payload)
	if err != nil {
		t.Fatalf("decrypt payload: %v", err)
	}
	if !strings.Contains(string(plaintext), "access-token-2") {
		t.Fatalf("expected rotated token in payload, got %s", plaintext)
	}
}

func TestUnlinkRevokesCredentialAndLink(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "strava"}
	linkStore := newMemoryLinkStore()
	svc := newTestService(t, provider, WithLinkStore(linkStore))

	begin, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}
	completion, err := svc.CompleteLink(ctx, CompleteLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		Code:       "auth-code",
		State:      begin.State,
	})
	if err != nil {
		t.Fatalf("complete link: %v", err)
	}

	if err := svc.Unlink(ctx, completion.Link.ID, "user requested"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	link, err := linkStore.Get(ctx, completion.Link.ID)
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if link.Status != LinkStatusRevoked {
		t.Fatalf("expected revoked link, got %q", link.Status)
	}

	view, err := svc.LinkStatusFor(ctx, "strava", ScopeRef{Type: "user", ID: "u1"})
	if err != nil {
		t.Fatalf("link status: %v", err)
	}
	if view.Connected {
		t.Fatalf("expected disconnected status after unlink")
	}
}

func TestLinkStatusFor_NeverExposesTokenMaterial(t *testing.T) {
	ctx := context.Background()
	provider := &testProvider{id: "strava"}
	svc := newTestService(t, provider)

	begin, err := svc.BeginLink(ctx, BeginLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
	})
	if err != nil {
		t.Fatalf("begin link: %v", err)
	}
	if _, err := svc.CompleteLink(ctx, CompleteLinkRequest{
		ProviderID: "strava",
		Scope:      ScopeRef{Type: "user", ID: "u1"},
		Code:       "auth-code",
		State:      begin.State,
	}); err != nil {
		t.Fatalf("complete link: %v", err)
	}

	view, err := svc.LinkStatusFor(ctx, "strava", ScopeRef{Type: "user", ID: "u1"})
	if err != nil {
		t.Fatalf("link status: %v", err)
	}
	if !view.Connected {
		t.Fatalf("expected connected view")
	}
	if view.ExternalAccountID != "acct_1" {
		t.Fatalf("expected public account id, got %q", view.ExternalAccountID)
	}
	if view.ExpiresAt == nil {
		t.Fatalf("expected expiry on status view")
	}
}
