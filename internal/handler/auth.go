package handler

import (
    "context"      // provides context with cancellation for DB calls
    "database/sql" // SQL transactions spanning user and ledger
    "errors"
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // timeouts for DB calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/table-reservation/internal/config"     // app configuration
    "github.com/iliyamo/table-reservation/internal/middleware" // identity set by JWTAuth
    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/repository" // DB repositories
    "github.com/iliyamo/table-reservation/internal/reservation"
    "github.com/iliyamo/table-reservation/internal/utils" // helper functions (hashing, token issuing)
)

// Releaser frees every cell an account holds.
type Releaser interface {
    Release(ctx context.Context, account model.AccountID) (reservation.ReleaseResult, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg     config.Config
    DB      *sql.DB
    Users   *repository.UserRepo
    Ledgers *repository.LedgerRepo
    Engine  Releaser
}

func NewAuthHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, l *repository.LedgerRepo, e Releaser) *AuthHandler {
    return &AuthHandler{Cfg: cfg, DB: db, Users: u, Ledgers: l, Engine: e}
}

// ----- DTOs -----

type registerReq struct {
    FullName string `json:"full_name"`
    Account  string `json:"account_id"`
    Email    string `json:"email"`
    Password string `json:"password"`
}
type loginReq struct {
    Account  string `json:"account_id"`
    Password string `json:"password"`
}

type loginResp struct {
    Token           string          `json:"token"`
    Expires         time.Time       `json:"expires"`
    Account         model.AccountID `json:"account_id"`
    StandardCredits int64           `json:"standard_credits"`
    SpecialCredits  int64           `json:"special_credits"`
}

type meResp struct {
    ID              uint64          `json:"id"`
    FullName        string          `json:"full_name"`
    Account         model.AccountID `json:"account_id"`
    Email           string          `json:"email"`
    Role            string          `json:"role"`
    StandardCredits int64           `json:"standard_credits"`
    SpecialCredits  int64           `json:"special_credits"`
}

func (h *AuthHandler) tokenTTL() time.Duration {
    return time.Duration(h.Cfg.TokenTTLHours) * time.Hour
}

// Register creates the user and its ledger with the starting grant in
// one transaction.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.FullName = strings.TrimSpace(req.FullName)
    req.Account = strings.TrimSpace(req.Account)
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if req.FullName == "" || req.Account == "" || req.Email == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name, account_id, email and password are required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    account := model.AccountID(req.Account)
    var uid uint64
    err := repository.WithTx(ctx, h.DB, func(tx *sql.Tx) error {
        var err error
        uid, err = h.Users.CreateTx(ctx, tx, repository.NewUser{
            FullName: req.FullName, Account: account, Email: req.Email, Password: req.Password,
        }, h.Cfg.BcryptCost)
        if err != nil {
            return err
        }
        return h.Ledgers.CreateTx(ctx, tx, model.Ledger{
            Account: account, Standard: h.Cfg.StartingStandard, Special: h.Cfg.StartingSpecial,
        })
    })
    if err != nil {
        if errors.Is(err, repository.ErrAccountExists) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "account or email already exists"})
        }
        if errors.Is(err, utils.ErrPasswordTooLong) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too long"})
        }
        c.Logger().Errorf("register %s: %v", account, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
    }

    return c.JSON(http.StatusCreated, echo.Map{
        "id":               uid,
        "account_id":       account,
        "standard_credits": h.Cfg.StartingStandard,
        "special_credits":  h.Cfg.StartingSpecial,
    })
}

// Login verifies the password and returns an access token together with
// the current balances.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Account = strings.TrimSpace(req.Account)
    if req.Account == "" || req.Password == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "account_id/password required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByAccount(ctx, model.AccountID(req.Account))
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    if !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    l, err := h.Ledgers.Get(ctx, u.Account)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load ledger failed"})
    }

    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Account, u.Role, h.tokenTTL())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
    }
    return c.JSON(http.StatusOK, loginResp{
        Token:           access.Token,
        Expires:         access.Exp,
        Account:         u.Account,
        StandardCredits: l.Standard,
        SpecialCredits:  l.Special,
    })
}

// Logout releases every cell the caller still holds.  Tokens are
// stateless, so nothing else is revoked; the client drops its token.
func (h *AuthHandler) Logout(c echo.Context) error {
    account, ok := middleware.Account(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, err := h.Engine.Release(c.Request().Context(), account)
    if err != nil {
        c.Logger().Errorf("logout release %s: %v", account, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "release failed"})
    }
    if len(res.Cells) > 0 {
        c.Logger().Infof("logout released %d cells account=%s", len(res.Cells), account)
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user with its current balances.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, ok := middleware.UserID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
    }
    l, err := h.Ledgers.Get(ctx, u.Account)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load ledger failed"})
    }
    return c.JSON(http.StatusOK, meResp{
        ID: u.ID, FullName: u.FullName, Account: u.Account, Email: u.Email, Role: u.Role,
        StandardCredits: l.Standard, SpecialCredits: l.Special,
    })
}
