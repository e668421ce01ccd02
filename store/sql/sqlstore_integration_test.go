package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-linker/core"
	linkermigrations "github.com/goliatone/go-linker/migrations"
	sqlstore "github.com/goliatone/go-linker/store/sql"
	"github.com/goliatone/go-linker/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-linker-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"linker_links",
		"linker_credentials",
		"linker_handshake_states",
		"linker_webhook_deliveries",
	} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestLinkStore_CreateGetAndTransitions(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	linkStore := factory.LinkStore()
	if linkStore == nil {
		t.Fatalf("expected link store from factory")
	}

	link, err := linkStore.Create(ctx, core.CreateLinkInput{
		ProviderID:        "garmin",
		Scope:             core.ScopeRef{Type: "user", ID: "usr_1"},
		ExternalAccountID: "garmin-user-1",
		Status:            core.LinkStatusActive,
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.ID == "" {
		t.Fatalf("expected link id to be assigned")
	}

	if _, err := linkStore.Create(ctx, core.CreateLinkInput{
		ProviderID:        "garmin",
		Scope:             core.ScopeRef{Type: "user", ID: "usr_1"},
		ExternalAccountID: "garmin-user-1",
		Status:            core.LinkStatusActive,
	}); err == nil {
		t.Fatalf("expected unique active link constraint violation")
	}

	fetched, err := linkStore.Get(ctx, link.ID)
	if err != nil {
		t.Fatalf("get link: %v", err)
	}
	if fetched.ProviderID != "garmin" || fetched.ScopeID != "usr_1" {
		t.Fatalf("unexpected link row: %+v", fetched)
	}

	links, err := linkStore.FindByScope(ctx, "garmin", core.ScopeRef{Type: "user", ID: "usr_1"})
	if err != nil {
		t.Fatalf("find by scope: %v", err)
	}
	if len(links) != 1 || links[0].ID != link.ID {
		t.Fatalf("expected one scoped link, got %+v", links)
	}

	if err := linkStore.UpdateStatus(ctx, link.ID, string(core.LinkStatusErrored), "token refresh failed"); err != nil {
		t.Fatalf("transition to errored: %v", err)
	}
	errored, err := linkStore.Get(ctx, link.ID)
	if err != nil {
		t.Fatalf("get errored link: %v", err)
	}
	if errored.Status != core.LinkStatusErrored {
		t.Fatalf("expected errored status, got %s", errored.Status)
	}
	if errored.LastError != "token refresh failed" {
		t.Fatalf("expected last error to be recorded, got %q", errored.LastError)
	}

	if err := linkStore.UpdateStatus(ctx, link.ID, string(core.LinkStatusActive), ""); err != nil {
		t.Fatalf("transition back to active: %v", err)
	}
	recovered, err := linkStore.Get(ctx, link.ID)
	if err != nil {
		t.Fatalf("get recovered link: %v", err)
	}
	if recovered.Status != core.LinkStatusActive || recovered.LastError != "" {
		t.Fatalf("expected active link with cleared error, got %+v", recovered)
	}

	if err := linkStore.UpdateStatus(ctx, link.ID, string(core.LinkStatusRevoked), "user unlinked"); err != nil {
		t.Fatalf("transition to revoked: %v", err)
	}
	if err := linkStore.UpdateStatus(ctx, link.ID, string(core.LinkStatusErrored), "late failure"); err == nil {
		t.Fatalf("expected revoked -> errored transition to be rejected")
	}

	if _, err := linkStore.Get(ctx, "8b7c3a90-1f4d-4a3c-9a51-000000000000"); !errors.Is(err, core.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestCredentialStore_VersioningRetiresPriorActive(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	linkStore := factory.LinkStore()
	credentialStore := factory.CredentialStore()

	link, err := linkStore.Create(ctx, core.CreateLinkInput{
		ProviderID:        "strava",
		Scope:             core.ScopeRef{Type: "user", ID: "usr_2"},
		ExternalAccountID: "12345",
		Status:            core.LinkStatusActive,
	})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}

	first, err := credentialStore.SaveNewVersion(ctx, core.SaveCredentialInput{
		LinkID:            link.ID,
		EncryptedPayload:  []byte("cipher-v1"),
		PayloadFormat:     "oauth2.token",
		PayloadVersion:    1,
		TokenType:         "bearer",
		Refreshable:       true,
		Status:            core.CredentialStatusActive,
		EncryptionKeyID:   "app-key",
		EncryptionVersion: 1,
	})
	if err != nil {
		t.Fatalf("save first credential: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected first credential version=1, got %d", first.Version)
	}

	second, err := credentialStore.SaveNewVersion(ctx, core.SaveCredentialInput{
		LinkID:            link.ID,
		EncryptedPayload:  []byte("cipher-v2"),
		PayloadFormat:     "oauth2.token",
		PayloadVersion:    1,
		TokenType:         "bearer",
		Refreshable:       true,
		Status:            core.CredentialStatusActive,
		EncryptionKeyID:   "app-key",
		EncryptionVersion: 1,
	})
	if err != nil {
		t.Fatalf("save second credential: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected second credential version=2, got %d", second.Version)
	}

	active, payload, err := credentialStore.GetActiveByLink(ctx, link.ID)
	if err != nil {
		t.Fatalf("get active credential: %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("expected active credential version=2, got %d", active.Version)
	}
	if string(payload) != "cipher-v2" {
		t.Fatalf("expected latest encrypted payload, got %q", payload)
	}

	var retiredCount int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM linker_credentials WHERE link_id = ? AND status = ? AND revocation_reason = ?",
		link.ID, string(core.CredentialStatusRetired), "rotated",
	).Scan(ctx, &retiredCount); err != nil {
		t.Fatalf("count retired credentials: %v", err)
	}
	if retiredCount != 1 {
		t.Fatalf("expected first credential to be retired as rotated, got %d rows", retiredCount)
	}

	if err := credentialStore.RevokeActive(ctx, link.ID, "user unlinked"); err != nil {
		t.Fatalf("revoke active credential: %v", err)
	}
	if _, _, err := credentialStore.GetActiveByLink(ctx, link.ID); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after revoke, got %v", err)
	}
}

func TestHandshakeStore_PeekThenOneShotConsume(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewHandshakeStore(client.DB(), 10*time.Minute)
	if err != nil {
		t.Fatalf("new handshake store: %v", err)
	}

	record := core.HandshakeRecord{
		State:          "state-abc",
		ProviderID:     "garmin",
		Scope:          core.ScopeRef{Type: "user", ID: "usr_3"},
		RedirectURI:    "https://app.example.com/garmin/done",
		CallerState:    "caller-xyz",
		TemporaryToken: "tmp-token",
		TokenSecret:    "tmp-secret",
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save handshake: %v", err)
	}

	peeked, err := store.Peek(ctx, "state-abc")
	if err != nil {
		t.Fatalf("peek handshake: %v", err)
	}
	if peeked.TemporaryToken != "tmp-token" || peeked.TokenSecret != "tmp-secret" {
		t.Fatalf("unexpected peeked record: %+v", peeked)
	}

	// Peek must not spend the record.
	if _, err := store.Peek(ctx, "state-abc"); err != nil {
		t.Fatalf("second peek: %v", err)
	}

	consumed, err := store.Consume(ctx, "state-abc")
	if err != nil {
		t.Fatalf("consume handshake: %v", err)
	}
	if consumed.CallerState != "caller-xyz" {
		t.Fatalf("unexpected consumed record: %+v", consumed)
	}

	if _, err := store.Consume(ctx, "state-abc"); !errors.Is(err, core.ErrHandshakeStateNotFound) {
		t.Fatalf("expected second consume to fail with not found, got %v", err)
	}

	expired := core.HandshakeRecord{
		State:      "state-expired",
		ProviderID: "garmin",
		Scope:      core.ScopeRef{Type: "user", ID: "usr_3"},
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
		ExpiresAt:  time.Now().UTC().Add(-30 * time.Minute),
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("save expired handshake: %v", err)
	}
	if _, err := store.Peek(ctx, "state-expired"); !errors.Is(err, core.ErrHandshakeStateExpired) {
		t.Fatalf("expected expired peek error, got %v", err)
	}

	pruned, err := store.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("prune expired: %v", err)
	}
	if pruned < 1 {
		t.Fatalf("expected at least one pruned row, got %d", pruned)
	}
}

func TestWebhookDeliveryStore_ClaimDedupeRetryAndDead(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	record, claimed, err := store.Claim(ctx, "stripe", "evt_1", []byte(`{"id":"evt_1"}`), 30*time.Second)
	if err != nil {
		t.Fatalf("claim delivery: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}
	if record.Attempts != 1 || record.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("unexpected claimed record: %+v", record)
	}

	// A second delivery of the same event while the claim is live dedupes.
	if _, claimedAgain, err := store.Claim(ctx, "stripe", "evt_1", nil, 30*time.Second); err != nil {
		t.Fatalf("duplicate claim: %v", err)
	} else if claimedAgain {
		t.Fatalf("expected duplicate claim to dedupe")
	}

	if err := store.Fail(ctx, record.ClaimID, "downstream unavailable", time.Now().UTC().Add(-time.Second), 8); err != nil {
		t.Fatalf("fail delivery: %v", err)
	}
	failed, err := store.Get(ctx, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("get failed delivery: %v", err)
	}
	if failed.Status != webhooks.DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready status, got %s", failed.Status)
	}
	if failed.LastError != "downstream unavailable" {
		t.Fatalf("expected failure cause recorded, got %q", failed.LastError)
	}

	// Retry window already open, so the next claim goes back to processing.
	retried, reclaimed, err := store.Claim(ctx, "stripe", "evt_1", nil, 30*time.Second)
	if err != nil {
		t.Fatalf("reclaim delivery: %v", err)
	}
	if !reclaimed {
		t.Fatalf("expected reclaim after retry window")
	}
	if retried.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", retried.Attempts)
	}

	if err := store.Complete(ctx, retried.ClaimID); err != nil {
		t.Fatalf("complete delivery: %v", err)
	}
	processed, err := store.Get(ctx, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("get processed delivery: %v", err)
	}
	if processed.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("expected processed status, got %s", processed.Status)
	}
	if _, claimedProcessed, err := store.Claim(ctx, "stripe", "evt_1", nil, 30*time.Second); err != nil {
		t.Fatalf("claim processed delivery: %v", err)
	} else if claimedProcessed {
		t.Fatalf("expected processed delivery to stay deduped")
	}

	// Stale completions must not resurrect the row.
	if err := store.Complete(ctx, record.ClaimID); err == nil {
		t.Fatalf("expected stale claim completion to fail")
	}

	deadRecord, claimedDead, err := store.Claim(ctx, "stripe", "evt_2", []byte(`{"id":"evt_2"}`), 30*time.Second)
	if err != nil || !claimedDead {
		t.Fatalf("claim second delivery: claimed=%v err=%v", claimedDead, err)
	}
	if err := store.Fail(ctx, deadRecord.ClaimID, "permanent failure", time.Now().UTC().Add(time.Minute), 1); err != nil {
		t.Fatalf("fail to dead: %v", err)
	}
	dead, err := store.Get(ctx, "stripe", "evt_2")
	if err != nil {
		t.Fatalf("get dead delivery: %v", err)
	}
	if dead.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected dead status, got %s", dead.Status)
	}
	if _, claimedAfterDead, err := store.Claim(ctx, "stripe", "evt_2", nil, 30*time.Second); err != nil {
		t.Fatalf("claim dead delivery: %v", err)
	} else if claimedAfterDead {
		t.Fatalf("expected dead delivery to reject new claims")
	}
}

func TestBuildStores_ResolvesPersistenceClient(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory := sqlstore.NewRepositoryFactory().WithHandshakeTTL(5 * time.Minute)
	provider, err := factory.BuildStores(client)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	if provider.LinkStore() == nil || provider.CredentialStore() == nil {
		t.Fatalf("expected stores from provider")
	}
	if factory.HandshakeStore() == nil || factory.WebhookDeliveryStore() == nil {
		t.Fatalf("expected handshake and webhook stores from factory")
	}
}

func TestOpenSelectsDialectByDriver(t *testing.T) {
	dsn := fmt.Sprintf(
		"file:linker-open-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.Open(testPersistenceConfig{driver: "sqlite3", server: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	if _, err := sqlstore.Open(testPersistenceConfig{driver: "mysql", server: "dsn"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(testPersistenceConfig{driver: "postgres", server: ""}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:linker-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = linkermigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != linkermigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, linkermigrations.WithValidationTargets(linkermigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
