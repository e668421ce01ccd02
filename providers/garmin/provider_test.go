package garmin

import (
	"testing"

	"github.com/goliatone/go-linker/core"
)

func TestNew(t *testing.T) {
	provider, err := New(Config{ConsumerKey: "ck", ConsumerSecret: "cs"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if provider.ID() != ProviderID {
		t.Fatalf("unexpected provider id %q", provider.ID())
	}
	if provider.AuthKind() != core.AuthKindOAuth1 {
		t.Fatalf("unexpected auth kind %q", provider.AuthKind())
	}
	if provider.Signer() == nil {
		t.Fatal("expected an outbound request signer")
	}
}

func TestNew_RequiresConsumerPair(t *testing.T) {
	if _, err := New(Config{ConsumerKey: "ck"}); err == nil {
		t.Fatal("expected missing consumer secret to be rejected")
	}
	if _, err := New(Config{ConsumerSecret: "cs"}); err == nil {
		t.Fatal("expected missing consumer key to be rejected")
	}
}
