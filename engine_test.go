package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/TSavo/authcore/internal/rate"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.AccessTTL = 15 * time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.JWT.Issuer = "authcore-test"
	// Deterministic delays for assertions.
	cfg.Delay.Base = 10 * time.Millisecond
	cfg.Delay.Factor = 2
	cfg.Delay.Max = 40 * time.Millisecond
	cfg.Delay.JitterFactor = 0
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*miniredis.Miniredis, *ChannelSink, *Engine) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	sink := NewChannelSink(64)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return mr, sink, engine
}

// waitEvent drains the sink until an event of the given type arrives.
func waitEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("event %q never arrived", eventType)
		}
	}
}

func TestBuildValidatesConfiguration(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("Build without redis must fail")
	}

	noSecret := testConfig()
	noSecret.JWT.Secret = nil
	if _, err := New().WithConfig(noSecret).WithRedis(client).Build(); err == nil {
		t.Fatal("Build without signing secret must fail")
	}

	shortProd := testConfig()
	shortProd.Production = true
	shortProd.JWT.Secret = []byte("short")
	if _, err := New().WithConfig(shortProd).WithRedis(client).Build(); err == nil {
		t.Fatal("production build with short secret must fail")
	}

	builder := New().WithConfig(testConfig()).WithRedis(client)
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("a builder must be single-use")
	}
}

func TestGenerateAndVerifyTokenResponse(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", map[string]string{"role": "admin"}, "Firefox", "1.2.3.4")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %q", resp.TokenType)
	}
	if resp.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected ExpiresIn: %d", resp.ExpiresIn)
	}

	access, err := engine.VerifyToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if access.UserID != "u1" || access.Type != "access" || access.Extra["role"] != "admin" {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refreshClaims, err := engine.VerifyToken(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh VerifyToken failed: %v", err)
	}
	if refreshClaims.Type != "refresh" || refreshClaims.FamilyID != access.FamilyID {
		t.Fatalf("pair must share one family: %+v", refreshClaims)
	}

	sessions, err := engine.ListSessions(ctx, "u1", access.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].IsCurrent {
		t.Fatalf("expected one current session, got %+v", sessions)
	}

	waitEvent(t, sink, EventTokenIssued)
}

func TestVerifyTokenAsync(t *testing.T) {
	ctx := context.Background()
	_, _, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}

	claims, err := engine.VerifyTokenAsync(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyTokenAsync failed: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := engine.VerifyTokenAsync(ctx, "garbage"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestVerifyTokenFailOpenEmitsStoreEvent(t *testing.T) {
	ctx := context.Background()
	mr, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}

	mr.Close()

	claims, err := engine.VerifyToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("verification should fail open, got %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	event := waitEvent(t, sink, EventStoreUnavailable)
	if event.Details["component"] != "token_revocation" {
		t.Fatalf("unexpected event details: %+v", event.Details)
	}
	if event.Details["jti"] != claims.ID {
		t.Fatalf("event jti: expected %q, got %q", claims.ID, event.Details["jti"])
	}
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}
	claims, err := engine.VerifyToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if err := engine.RevokeToken(ctx, "u1", claims.ID, claims.ExpiresAt.Time); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	if _, err := engine.VerifyToken(ctx, resp.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	waitEvent(t, sink, EventTokenRevoked)
}

func TestRotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "Firefox", "1.2.3.4")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}

	rotated, err := engine.RotateRefreshToken(ctx, resp.RefreshToken, "Firefox", "1.2.3.4")
	if err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}
	if rotated.AccessToken == resp.AccessToken || rotated.RefreshToken == resp.RefreshToken {
		t.Fatal("rotation must mint fresh tokens")
	}

	waitEvent(t, sink, EventRefreshRotated)

	// The straightforward replay path: the spent token is blacklisted.
	if _, err := engine.RotateRefreshToken(ctx, resp.RefreshToken, "", ""); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked on replay, got %v", err)
	}
}

func TestRefreshReuseCollapsesFamily(t *testing.T) {
	ctx := context.Background()
	mr, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "9.9.9.9")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}

	rotated, err := engine.RotateRefreshToken(ctx, resp.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("RotateRefreshToken failed: %v", err)
	}

	// Simulate an attacker replaying past the blacklist TTL: clear the
	// spent token's entry so the atomic claim path decides.
	oldClaims, err := engine.VerifyTokenLocal(resp.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyTokenLocal failed: %v", err)
	}
	mr.Del("ac:revoked:token:" + oldClaims.ID)

	if _, err := engine.RotateRefreshToken(ctx, resp.RefreshToken, "", "6.6.6.6"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}

	event := waitEvent(t, sink, EventRefreshReuseDetected)
	if event.Details["severity"] != "high" {
		t.Fatalf("reuse must be high severity: %+v", event)
	}
	waitEvent(t, sink, EventFamilyRevoked)

	// Everything in the family is now dead.
	if _, err := engine.RotateRefreshToken(ctx, rotated.RefreshToken, "", ""); !errors.Is(err, ErrFamilyRevoked) {
		t.Fatalf("expected ErrFamilyRevoked, got %v", err)
	}
	if _, err := engine.VerifyToken(ctx, rotated.RefreshToken); !errors.Is(err, ErrFamilyRevoked) {
		t.Fatalf("refresh verification must see the collapsed family, got %v", err)
	}

	revoked, err := engine.IsTokenFamilyRevoked(ctx, oldClaims.FamilyID)
	if err != nil {
		t.Fatalf("IsTokenFamilyRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("family flag must be set")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("reuse counter: %d", snap.Counters[MetricRefreshReuseDetected])
	}
}

func TestRevokeTokenFamilyExplicitly(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}
	claims, err := engine.VerifyToken(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	if err := engine.RevokeTokenFamily(ctx, "u1", claims.FamilyID); err != nil {
		t.Fatalf("RevokeTokenFamily failed: %v", err)
	}
	waitEvent(t, sink, EventFamilyRevoked)

	if _, err := engine.RotateRefreshToken(ctx, resp.RefreshToken, "", ""); !errors.Is(err, ErrFamilyRevoked) {
		t.Fatalf("expected ErrFamilyRevoked, got %v", err)
	}

	// Access tokens run out their own short lifetime; the family flag does
	// not retroactively blacklist them.
	if _, err := engine.VerifyToken(ctx, resp.AccessToken); err != nil {
		t.Fatalf("access token should still verify: %v", err)
	}
}

func TestCheckRateLimit(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Profiles[OpLogin] = rate.Profile{Limit: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		result, err := engine.CheckRateLimit(ctx, OpLogin, "1.2.3.4")
		if err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	result, err := engine.CheckRateLimit(ctx, OpLogin, "1.2.3.4")
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("third login should be denied")
	}

	waitEvent(t, sink, EventRateLimitExceeded)
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("rate limit hit counter: %d", got)
	}
}

func TestCheckRateLimitUnknownOperationFallsBack(t *testing.T) {
	ctx := context.Background()
	_, _, engine := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.Profiles[OpAPI] = rate.Profile{Limit: 1, Window: time.Minute}
	})

	if result, _ := engine.CheckRateLimit(ctx, "export_csv", "c1"); !result.Allowed {
		t.Fatal("first request should be allowed")
	}
	if result, _ := engine.CheckRateLimit(ctx, "export_csv", "c1"); result.Allowed {
		t.Fatal("unknown operation must inherit the api budget")
	}
}

func TestCheckRateLimitFailsOpen(t *testing.T) {
	ctx := context.Background()
	mr, sink, engine := newTestEngine(t, nil)
	mr.Close()

	result, err := engine.CheckRateLimit(ctx, OpLogin, "1.2.3.4")
	if err != nil {
		t.Fatalf("fail-open must not surface an error, got %v", err)
	}
	if !result.Allowed || !result.FailedOpen {
		t.Fatalf("expected allowed fail-open result: %+v", result)
	}

	waitEvent(t, sink, EventStoreUnavailable)
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitFailOpen]; got != 1 {
		t.Fatalf("fail-open counter: %d", got)
	}
}

func TestLoginDelayLifecycle(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, expected := range want {
		next, err := engine.RecordLoginFailure(ctx, "1.2.3.4", "curl/8")
		if err != nil {
			t.Fatalf("RecordLoginFailure %d failed: %v", i+1, err)
		}
		if next != expected {
			t.Fatalf("failure %d: expected %v, got %v", i+1, expected, next)
		}
	}
	waitEvent(t, sink, EventLoginFailure)

	current, err := engine.GetLoginDelay(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("GetLoginDelay failed: %v", err)
	}
	if current != 40*time.Millisecond {
		t.Fatalf("expected 40ms, got %v", current)
	}

	applied, err := engine.ApplyLoginDelay(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("ApplyLoginDelay failed: %v", err)
	}
	if applied != 40*time.Millisecond {
		t.Fatalf("expected 40ms applied, got %v", applied)
	}
	waitEvent(t, sink, EventProgressiveDelay)

	if err := engine.RecordLoginSuccess(ctx, "u1", "1.2.3.4", "curl/8"); err != nil {
		t.Fatalf("RecordLoginSuccess failed: %v", err)
	}
	waitEvent(t, sink, EventLoginSuccess)

	current, err = engine.GetLoginDelay(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("GetLoginDelay after success failed: %v", err)
	}
	if current != 0 {
		t.Fatalf("success must clear the delay, got %v", current)
	}
}

func TestSessionRevocation(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	respA, err := engine.GenerateTokenResponse(ctx, "u1", nil, "laptop", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse A failed: %v", err)
	}
	if _, err := engine.GenerateTokenResponse(ctx, "u1", nil, "phone", ""); err != nil {
		t.Fatalf("GenerateTokenResponse B failed: %v", err)
	}

	claimsA, err := engine.VerifyToken(ctx, respA.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	// Cross-user revocation is refused and audited.
	if _, err := engine.RevokeSession(ctx, "u2", claimsA.ID); !errors.Is(err, ErrSessionNotOwned) {
		t.Fatalf("expected ErrSessionNotOwned, got %v", err)
	}
	waitEvent(t, sink, EventUnauthorizedSession)

	ok, err := engine.RevokeSession(ctx, "u1", claimsA.ID)
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if !ok {
		t.Fatal("owner revocation should succeed")
	}
	waitEvent(t, sink, EventSessionRevoked)

	if _, err := engine.VerifyToken(ctx, respA.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("revoking the session must blacklist the token, got %v", err)
	}

	sessions, err := engine.ListSessions(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 remaining session, got %d", len(sessions))
	}
}

func TestRevokeAllSessionsKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	_, sink, engine := newTestEngine(t, nil)

	current, err := engine.GenerateTokenResponse(ctx, "u1", nil, "laptop", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.GenerateTokenResponse(ctx, "u1", nil, "other", ""); err != nil {
			t.Fatalf("GenerateTokenResponse failed: %v", err)
		}
	}

	currentClaims, err := engine.VerifyToken(ctx, current.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	count, err := engine.RevokeAllSessions(ctx, "u1", true, currentClaims.ID)
	if err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}
	waitEvent(t, sink, EventSessionRevokedAll)

	sessions, err := engine.ListSessions(ctx, "u1", currentClaims.ID)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].IsCurrent {
		t.Fatalf("only the current session should survive: %+v", sessions)
	}
}

func TestTouchSession(t *testing.T) {
	ctx := context.Background()
	_, _, engine := newTestEngine(t, nil)

	resp, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", "")
	if err != nil {
		t.Fatalf("GenerateTokenResponse failed: %v", err)
	}
	claims, err := engine.VerifyToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}

	ok, err := engine.TouchSession(ctx, claims.ID)
	if err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	if !ok {
		t.Fatal("TouchSession should find the session")
	}

	ok, err = engine.TouchSession(ctx, "missing-jti")
	if err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}
	if ok {
		t.Fatal("missing session must report false")
	}
}

func TestNilEngineIsInert(t *testing.T) {
	ctx := context.Background()
	var engine *Engine

	if _, err := engine.GenerateTokenResponse(ctx, "u1", nil, "", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.VerifyToken(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.RotateRefreshToken(ctx, "x", "", ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	engine.Close()
}

func TestPingReportsStoreHealth(t *testing.T) {
	ctx := context.Background()
	mr, _, engine := newTestEngine(t, nil)

	if _, err := engine.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if _, err := engine.Ping(ctx); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
