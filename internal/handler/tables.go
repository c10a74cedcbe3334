package handler

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/middleware"
    "github.com/iliyamo/table-reservation/internal/model"
    "github.com/iliyamo/table-reservation/internal/reservation"
)

// Reserver is the part of reservation.Engine exposed over HTTP.
type Reserver interface {
    Releaser
    Purchase(ctx context.Context, account model.AccountID) (reservation.PurchaseResult, error)
}

// Snapshotter reads the current grid and balances.
type Snapshotter interface {
    Snapshot(ctx context.Context) (model.Snapshot, error)
}

// TablesHandler serves the grid over plain HTTP.  Clicks only travel over
// the push channel; purchase and release are available here too so a
// client can confirm without an open socket.
type TablesHandler struct {
    Engine    Reserver
    Snapshots Snapshotter
}

func NewTablesHandler(e Reserver, s Snapshotter) *TablesHandler {
    return &TablesHandler{Engine: e, Snapshots: s}
}

func labels(cells []model.Cell) []string {
    out := make([]string, len(cells))
    for i, c := range cells {
        out[i] = c.Label
    }
    return out
}

// Snapshot handles GET /v1/tables.
func (h *TablesHandler) Snapshot(c echo.Context) error {
    snap, err := h.Snapshots.Snapshot(c.Request().Context())
    if err != nil {
        c.Logger().Errorf("snapshot: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "snapshot failed"})
    }
    return c.JSON(http.StatusOK, snap)
}

// Purchase handles POST /v1/tables/purchase: every cell the caller holds
// becomes purchased.
func (h *TablesHandler) Purchase(c echo.Context) error {
    account, ok := middleware.Account(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    res, err := h.Engine.Purchase(c.Request().Context(), account)
    if err != nil {
        return reservationError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "cells":            labels(res.Cells),
        "cost":             res.Cost,
        "special_gain":     res.Gain,
        "standard_credits": res.Ledger.Standard,
        "special_credits":  res.Ledger.Special,
    })
}

// Release handles POST /v1/tables/release for the caller's own holds.
func (h *TablesHandler) Release(c echo.Context) error {
    account, ok := middleware.Account(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    return h.release(c, account)
}

// AdminRelease handles POST /v1/admin/accounts/:account/release, freeing
// another account's holds (e.g. a household that left without logging
// out).
func (h *TablesHandler) AdminRelease(c echo.Context) error {
    account := strings.TrimSpace(c.Param("account"))
    if account == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "account required"})
    }
    return h.release(c, model.AccountID(account))
}

func (h *TablesHandler) release(c echo.Context, account model.AccountID) error {
    res, err := h.Engine.Release(c.Request().Context(), account)
    if err != nil {
        return reservationError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "account_id": account,
        "cells":      labels(res.Cells),
        "refund":     res.Refund,
    })
}
