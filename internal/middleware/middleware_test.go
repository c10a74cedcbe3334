package middleware

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/utils"
)

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	a, _ := Account(c)
	id, _ := UserID(c)
	return c.JSON(http.StatusOK, echo.Map{"account": a, "id": id, "role": Role(c)})
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth("k"))

	rec := serve(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := utils.NewAccessToken("k", 7, "casa-3", model.RoleUser, time.Hour)
	require.NoError(t, err)
	rec = serve(e, http.MethodGet, "/me", tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account":"casa-3","id":7,"role":"USER"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", whoami, JWTAuth("k"), RequireRole(model.RoleAdmin))

	user, _ := utils.NewAccessToken("k", 1, "casa-1", model.RoleUser, time.Hour)
	admin, _ := utils.NewAccessToken("k", 2, "casa-2", model.RoleAdmin, time.Hour)

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", user.Token).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", admin.Token).Code)
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1,
		RefillInterval: time.Second, TTL: time.Minute,
		KeyStrategy: "account_route", Prefix: "rl",
	}
}

func TestTokenBucket_AllowsAndBlocks(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	fixed := time.UnixMilli(1_700_000_000_000)
	cfg := rateConfig()

	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		newTokenBucket(cfg, rdb, func() time.Time { return fixed }))

	key := "rl:acc:anon:route:GET /x"
	args := []interface{}{fixed.UnixMilli(), cfg.Capacity, cfg.RefillTokens, int64(1000), int64(60)}
	mock.ExpectEvalSha(tokenBucket.Hash(), []string{key}, args...).SetVal([]interface{}{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(tokenBucket.Hash(), []string{key}, args...).SetVal([]interface{}{int64(0), int64(0), int64(1500)})

	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	fixed := time.UnixMilli(42)
	cfg := rateConfig()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		newTokenBucket(cfg, rdb, func() time.Time { return fixed }))

	mock.ExpectEvalSha(tokenBucket.Hash(), []string{"rl:acc:anon:route:GET /x"},
		fixed.UnixMilli(), cfg.Capacity, cfg.RefillTokens, int64(1000), int64(60)).SetErr(fmt.Errorf("redis down"))

	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", "").Code)
}

func TestTokenBucket_DisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket(rateConfig(), nil))
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", "").Code)
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, KeyStrategy: "route", Prefix: "cache"}
}

func TestRedisCache_HitReplaysStoredResponse(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	e := echo.New()
	called := false
	e.GET("/v1/config", func(c echo.Context) error { called = true; return c.NoContent(http.StatusOK) },
		NewRedisCache(cacheConfig(), rdb))

	payload, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`{"eventName":"Evento A"}`))
	require.NoError(t, err)
	key := fmt.Sprintf("cache:%x", sha1.Sum([]byte("route:/v1/config")))
	mock.ExpectGet(key).SetVal(string(payload))

	rec := serve(e, http.MethodGet, "/v1/config", "")
	assert.False(t, called)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"eventName":"Evento A"}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_MissRunsHandler(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	e := echo.New()
	e.GET("/v1/config", func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"ok": true}) },
		NewRedisCache(cacheConfig(), rdb))

	key := fmt.Sprintf("cache:%x", sha1.Sum([]byte("route:/v1/config")))
	mock.ExpectGet(key).RedisNil()

	rec := serve(e, http.MethodGet, "/v1/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestPayloadCodec_RejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
