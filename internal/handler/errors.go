package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/reservation"
)

// reservationError writes the JSON error for a failed engine operation.
func reservationError(c echo.Context, err error) error {
    switch {
    case errors.Is(err, reservation.ErrNothingSelected):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "no held cells to purchase"})
    case errors.Is(err, reservation.ErrInsufficientCredits):
        return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "insufficient standard credits"})
    case errors.Is(err, reservation.ErrTransactionConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "concurrent update, try again"})
    case errors.Is(err, reservation.ErrNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
    default:
        c.Logger().Errorf("reservation: %v", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
}
