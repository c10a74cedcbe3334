package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/table-reservation/internal/broadcast"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/database"
	"github.com/iliyamo/table-reservation/internal/database/dbtest"
	"github.com/iliyamo/table-reservation/internal/grid"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/presence"
	"github.com/iliyamo/table-reservation/internal/repository"
	"github.com/iliyamo/table-reservation/internal/reservation"
	"github.com/iliyamo/table-reservation/internal/router"
)

type app struct {
	e      *echo.Echo
	engine *reservation.Engine
	users  *repository.UserRepo
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	cells := repository.NewCellRepo(db, database.SQLite)
	ledgers := repository.NewLedgerRepo(db, database.SQLite)
	users := repository.NewUserRepo(db)

	settings := config.DefaultGridSettings()
	settings.Rows, settings.Cols, settings.Placeholders = 2, 3, nil
	require.NoError(t, grid.Seed(ctx, cells, settings.Layout()))

	cfg := config.Config{JWTSecret: "router-secret", TokenTTLHours: 1, BcryptCost: bcrypt.MinCost, StartingStandard: 2}
	coord := broadcast.New(db, cells, ledgers, presence.New())
	policy := settings.Policy()
	eng := reservation.New(db, cells, ledgers, reservation.Options{Policy: &policy})

	e := router.New(router.Deps{
		Cfg:    cfg,
		Grid:   settings,
		DB:     db,
		Auth:   handler.NewAuthHandler(cfg, db, users, ledgers, eng),
		Tables: handler.NewTablesHandler(eng, coord),
	})
	return &app{e: e, engine: eng, users: users}
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(b)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) register(t *testing.T, account string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"full_name": "Casa " + account, "account_id": account,
		"email": account + "@example.com", "password": "pw-" + account,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"account_id": account, "password": "pw-" + account})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token    string `json:"token"`
		Standard int64  `json:"standard_credits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, int64(2), out.Standard)
	return out.Token
}

func TestRegister_Validation(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{"account_id": "casa-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.register(t, "casa-1")
	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"full_name": "Other", "account_id": "casa-1", "email": "other@example.com", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	a := newApp(t)
	a.register(t, "casa-1")
	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"account_id": "casa-1", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"account_id": "ghost", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe_ReturnsBalances(t *testing.T) {
	a := newApp(t)
	tok := a.register(t, "casa-1")

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/me", "", nil).Code)

	rec := a.do(t, http.MethodGet, "/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Account  string `json:"account_id"`
		Role     string `json:"role"`
		Standard int64  `json:"standard_credits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "casa-1", me.Account)
	assert.Equal(t, model.RoleUser, me.Role)
	assert.Equal(t, int64(2), me.Standard)
}

func TestPurchaseFlow(t *testing.T) {
	a := newApp(t)
	tok := a.register(t, "casa-1")

	rec := a.do(t, http.MethodPost, "/v1/tables/purchase", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := a.engine.Click(context.Background(), "casa-1", 0, 0)
	require.NoError(t, err)

	rec = a.do(t, http.MethodPost, "/v1/tables/purchase", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"cells":["A-01"],"cost":1,"special_gain":1,"standard_credits":0,"special_credits":1}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/v1/tables", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Cells, 6)
	assert.Equal(t, model.StatusPurchased, snap.Cells[0].OccupancyStatus)
}

func TestPurchase_InsufficientCredits(t *testing.T) {
	a := newApp(t)
	tok := a.register(t, "casa-1")
	ctx := context.Background()
	_, err := a.engine.Click(ctx, "casa-1", 0, 0)
	require.NoError(t, err)
	_, err = a.engine.Click(ctx, "casa-1", 0, 1)
	require.NoError(t, err)

	// Both credits went into the holds; the purchase needs two more.
	rec := a.do(t, http.MethodPost, "/v1/tables/purchase", tok, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestLogout_ReleasesHolds(t *testing.T) {
	a := newApp(t)
	tok := a.register(t, "casa-1")
	_, err := a.engine.Click(context.Background(), "casa-1", 1, 2)
	require.NoError(t, err)

	rec := a.do(t, http.MethodPost, "/v1/auth/logout", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/me", tok, nil)
	assert.Contains(t, rec.Body.String(), `"standard_credits":2`)
}

func TestAdminRelease_RequiresAdmin(t *testing.T) {
	a := newApp(t)
	user := a.register(t, "casa-1")
	a.register(t, "ops")
	require.NoError(t, a.users.SetRole(context.Background(), "ops", model.RoleAdmin))
	// Roles are read from the token, so log in again after promotion.
	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"account_id": "ops", "password": "pw-ops"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	_, err := a.engine.Click(context.Background(), "casa-1", 0, 2)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/v1/admin/accounts/casa-1/release", user, nil).Code)

	rec = a.do(t, http.MethodPost, "/v1/admin/accounts/casa-1/release", out.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"casa-1","cells":["C-01"],"refund":1}`, rec.Body.String())
}

func TestPublicRoutes(t *testing.T) {
	a := newApp(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/healthz", "", nil).Code)
	rec := a.do(t, http.MethodGet, "/v1/config", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mapCols":3`)
}
