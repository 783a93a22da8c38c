package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/service/features/command/updateloan"
)

const maxNotificationBody = 1 << 20

// LoanUpdater applies a distributor notification to a loan.
type LoanUpdater interface {
	UpdateLoan(ctx context.Context, loanID uuid.UUID, document *loanstatus.LoanStatusDocument) (updateloan.Result, error)
}

// NotificationController serves the callback the distributor calls when a loan changes.
// A POST may carry the new Loan Status Document; a GET or an empty body makes the engine fetch it.
type NotificationController struct {
	Loans   LoanUpdater
	Library string
	Log     *slog.Logger
}

type notificationResponse struct {
	LoanID     string `json:"loan_id"`
	Change     string `json:"change"`
	Idempotent bool   `json:"idempotent"`
}

// Notify handles GET|POST /odl/notify?library_short_name=&loan_id=.
func (h *NotificationController) Notify(c echo.Context) error {
	if c.QueryParam("library_short_name") != h.Library {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown library"})
	}

	loanID, err := uuid.Parse(c.QueryParam("loan_id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown loan"})
	}

	var document *loanstatus.LoanStatusDocument
	if c.Request().Method == http.MethodPost {
		document, err = readLoanStatusDocument(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid loan status document"})
		}
	}

	result, err := h.Loans.UpdateLoan(c.Request().Context(), loanID, document)
	switch {
	case errors.Is(err, circulation.ErrLoanNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "unknown loan"})

	case errors.Is(err, loanstatus.ErrRequestTimedOut),
		errors.Is(err, loanstatus.ErrNetworkFailure),
		errors.Is(err, loanstatus.ErrBadStatus),
		errors.Is(err, loanstatus.ErrMalformedDocument):
		h.Log.Error("loan notification failed", "loan_id", loanID.String(), "error", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "distributor unavailable"})

	case err != nil:
		h.Log.Error("loan notification failed", "loan_id", loanID.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}

	return c.JSON(http.StatusOK, notificationResponse{
		LoanID:     loanID.String(),
		Change:     result.Change.String(),
		Idempotent: result.Idempotent,
	})
}

// readLoanStatusDocument returns nil for an empty body.
func readLoanStatusDocument(body io.Reader) (*loanstatus.LoanStatusDocument, error) {
	if body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxNotificationBody))
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	document, err := loanstatus.ParseLoanStatusDocument(raw)
	if err != nil {
		return nil, err
	}

	return &document, nil
}
