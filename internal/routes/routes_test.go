package routes

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voicetype/voicetype/internal/config"
	"github.com/voicetype/voicetype/internal/license"
	"github.com/voicetype/voicetype/internal/logging"
	"github.com/voicetype/voicetype/internal/transcribe"
)

type stubProvider struct {
	result transcribe.ProviderResult
	err    error
}

func (p *stubProvider) Transcribe(_ context.Context, _ []byte, _ string) (transcribe.ProviderResult, error) {
	if p.err != nil {
		return transcribe.ProviderResult{}, p.err
	}
	return p.result, nil
}

type testEnv struct {
	app   *fiber.App
	codec *license.Codec
	mr    *miniredis.Miniredis
}

func setupApp(t *testing.T, provider transcribe.Provider) testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	encKey := make([]byte, 32)
	if _, err := rand.Read(encKey); err != nil {
		t.Fatalf("random key: %v", err)
	}
	codec, err := license.NewCodec(encKey)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	cfg := config.Config{
		AppName:         "VoiceType",
		LicenseKey:      encKey,
		JWTSecret:       "access-secret-0123456789-0123456789",
		RefreshSecret:   "refresh-secret-0123456789-012345678",
		AccessTokenTTL:  7 * 24 * time.Hour,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		RateLimitWindow: time.Hour,
		StoreTimeout:    2 * time.Second,
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard(), Provider: provider}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}

	return testEnv{app: app, codec: codec, mr: mr}
}

func (e testEnv) register(t *testing.T, email, licenseKey, deviceID string) (int, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email":      email,
		"licenseKey": licenseKey,
		"deviceId":   deviceID,
	})
	req := httptest.NewRequest(fiber.MethodPost, "/register", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &payload)
	return resp.StatusCode, payload
}

func (e testEnv) mintLicense(t *testing.T, tier license.Tier) string {
	t.Helper()
	key, err := e.codec.Encode(tier)
	if err != nil {
		t.Fatalf("encode license: %v", err)
	}
	return key
}

func TestRegisterEndpoint(t *testing.T) {
	env := setupApp(t, &stubProvider{})

	status, payload := env.register(t, "user@example.com", env.mintLicense(t, license.TierBasic), "device-1")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", status, payload)
	}
	access, _ := payload["accessToken"].(string)
	refresh, _ := payload["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("missing tokens in %v", payload)
	}
	u, ok := payload["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user in %v", payload)
	}
	if u["email"] != "user@example.com" || u["tier"] != "basic" {
		t.Fatalf("user = %v", u)
	}
	if id, _ := u["id"].(string); id == "" {
		t.Fatal("missing user id")
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := setupApp(t, &stubProvider{})
	key := env.mintLicense(t, license.TierFree)

	cases := []struct {
		name  string
		email string
		key   string
	}{
		{"invalid email", "nope", key},
		{"missing email", "", key},
		{"garbage license", "a@example.com", "VT-NOPE"},
		{"empty license", "a@example.com", ""},
	}
	for _, tc := range cases {
		status, payload := env.register(t, tc.email, tc.key, "device")
		if status != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", tc.name, status)
		}
		if _, ok := payload["error"]; !ok {
			t.Fatalf("%s: missing error field in %v", tc.name, payload)
		}
	}
}

func TestRegisterRejectsUsedLicense(t *testing.T) {
	env := setupApp(t, &stubProvider{})
	key := env.mintLicense(t, license.TierPro)

	if status, _ := env.register(t, "first@example.com", key, "d1"); status != fiber.StatusOK {
		t.Fatalf("first registration failed with %d", status)
	}
	status, payload := env.register(t, "second@example.com", key, "d2")
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "already activated") {
		t.Fatalf("error = %v, want already-activated message", payload["error"])
	}
}

func TestTranscribeRequiresAuth(t *testing.T) {
	env := setupApp(t, &stubProvider{})

	req := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err = env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestTranscribeEndpoint(t *testing.T) {
	env := setupApp(t, &stubProvider{result: transcribe.ProviderResult{Text: "hallo", Duration: 90}})

	_, payload := env.register(t, "t@example.com", env.mintLicense(t, license.TierPro), "device")
	accessToken, _ := payload["accessToken"].(string)

	req := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio-bytes")))
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
	req.Header.Set(fiber.HeaderContentType, "audio/wav")

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	var body struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
		Usage    struct {
			Remaining int   `json:"remaining"`
			ResetAt   int64 `json:"resetAt"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Text != "hallo" || body.Duration != 90 {
		t.Fatalf("body = %+v", body)
	}
	if body.Usage.Remaining != 999 {
		t.Fatalf("remaining = %d, want 999", body.Usage.Remaining)
	}
	if body.Usage.ResetAt <= time.Now().Unix() {
		t.Fatalf("resetAt %d not in the future", body.Usage.ResetAt)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "999" {
		t.Fatalf("X-RateLimit-Remaining = %q", resp.Header.Get("X-RateLimit-Remaining"))
	}
}

func TestTranscribeRateLimitResponse(t *testing.T) {
	env := setupApp(t, &stubProvider{result: transcribe.ProviderResult{Text: "ok", Duration: 10}})

	_, payload := env.register(t, "free@example.com", env.mintLicense(t, license.TierFree), "device")
	accessToken, _ := payload["accessToken"].(string)

	var lastStatus int
	var lastResp map[string]any
	var lastHeaders map[string]string
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
		req.Header.Set(fiber.HeaderContentType, "audio/wav")
		resp, err := env.app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		lastStatus = resp.StatusCode
		lastResp = map[string]any{}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		_ = json.Unmarshal(raw, &lastResp)
		lastHeaders = map[string]string{
			"remaining": resp.Header.Get("X-RateLimit-Remaining"),
			"reset":     resp.Header.Get("X-RateLimit-Reset"),
		}
		if i < 10 && resp.StatusCode != fiber.StatusOK {
			t.Fatalf("call %d status = %d: %s", i+1, resp.StatusCode, raw)
		}
	}

	if lastStatus != fiber.StatusTooManyRequests {
		t.Fatalf("call 11 status = %d, want 429", lastStatus)
	}
	if lastHeaders["remaining"] != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", lastHeaders["remaining"])
	}
	if lastHeaders["reset"] == "" {
		t.Fatal("missing X-RateLimit-Reset header")
	}
	resetAt, ok := lastResp["resetAt"].(float64)
	if !ok || int64(resetAt) <= time.Now().Unix() {
		t.Fatalf("resetAt = %v, want future timestamp", lastResp["resetAt"])
	}
}

func TestTranscribeUpstreamFailure(t *testing.T) {
	env := setupApp(t, &stubProvider{err: fmt.Errorf("provider down")})

	_, payload := env.register(t, "up@example.com", env.mintLicense(t, license.TierPro), "device")
	accessToken, _ := payload["accessToken"].(string)

	req := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	env := setupApp(t, &stubProvider{result: transcribe.ProviderResult{Text: "x", Duration: 1}})

	_, payload := env.register(t, "r@example.com", env.mintLicense(t, license.TierBasic), "device")
	refreshToken, _ := payload["refreshToken"].(string)

	body, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	req := httptest.NewRequest(fiber.MethodPost, "/auth/refresh", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}

	var refreshed struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&refreshed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if refreshed.AccessToken == "" {
		t.Fatal("missing refreshed access token")
	}
	if refreshed.ExpiresIn != int64((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("expiresIn = %d", refreshed.ExpiresIn)
	}

	// The refreshed access token must work on protected routes.
	treq := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
	treq.Header.Set(fiber.HeaderAuthorization, "Bearer "+refreshed.AccessToken)
	tresp, err := env.app.Test(treq)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if tresp.StatusCode != fiber.StatusOK {
		t.Fatalf("transcribe with refreshed token: status = %d", tresp.StatusCode)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := setupApp(t, &stubProvider{})

	_, payload := env.register(t, "ra@example.com", env.mintLicense(t, license.TierBasic), "device")
	accessToken, _ := payload["accessToken"].(string)

	body, _ := json.Marshal(map[string]string{"refreshToken": accessToken})
	req := httptest.NewRequest(fiber.MethodPost, "/auth/refresh", bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestUsageEndpoint(t *testing.T) {
	env := setupApp(t, &stubProvider{result: transcribe.ProviderResult{Text: "hi", Duration: 150}})

	_, payload := env.register(t, "u@example.com", env.mintLicense(t, license.TierPro), "device")
	accessToken, _ := payload["accessToken"].(string)

	treq := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
	treq.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
	tresp, err := env.app.Test(treq)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if tresp.StatusCode != fiber.StatusOK {
		t.Fatalf("transcribe status = %d", tresp.StatusCode)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/usage", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Tier             string `json:"tier"`
		MinutesThisMonth int64  `json:"minutesThisMonth"`
		Remaining        int    `json:"remaining"`
		ResetAt          int64  `json:"resetAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Tier != "pro" {
		t.Fatalf("tier = %q", body.Tier)
	}
	// ceil(150/60) = 3
	if body.MinutesThisMonth != 3 {
		t.Fatalf("minutes = %d, want 3", body.MinutesThisMonth)
	}
	if body.Remaining != 999 {
		t.Fatalf("remaining = %d, want 999 (status must not consume)", body.Remaining)
	}
}

func TestWindowRolloverEndToEnd(t *testing.T) {
	env := setupApp(t, &stubProvider{result: transcribe.ProviderResult{Text: "x", Duration: 5}})

	_, payload := env.register(t, "roll@example.com", env.mintLicense(t, license.TierFree), "device")
	accessToken, _ := payload["accessToken"].(string)

	call := func() int {
		req := httptest.NewRequest(fiber.MethodPost, "/transcribe", bytes.NewReader([]byte("audio")))
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+accessToken)
		resp, err := env.app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 10; i++ {
		if status := call(); status != fiber.StatusOK {
			t.Fatalf("call %d status = %d", i+1, status)
		}
	}
	if status := call(); status != fiber.StatusTooManyRequests {
		t.Fatalf("over-quota status = %d, want 429", status)
	}

	env.mr.FastForward(time.Hour + time.Second)

	if status := call(); status != fiber.StatusOK {
		t.Fatalf("post-rollover status = %d, want 200", status)
	}
}
