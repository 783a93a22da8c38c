package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathangreen/circulation/circulation"
	"github.com/jonathangreen/circulation/circulation/loanstatus"
	"github.com/jonathangreen/circulation/circulation/promadapters"
	"github.com/jonathangreen/circulation/service/features/command/updateloan"
	"github.com/jonathangreen/circulation/service/shared/core"
	"github.com/jonathangreen/circulation/service/shared/shell"
)

func Test_NotificationController_Notify(t *testing.T) {
	loanID := uuid.New()

	testCases := []struct {
		name           string
		method         string
		target         string
		body           string
		updateErr      error
		expectedStatus int
		expectCall     bool
		expectDocument bool
	}{
		{
			name:           "get fetches the document",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			expectedStatus: http.StatusOK,
			expectCall:     true,
		},
		{
			name:           "post carries the document",
			method:         http.MethodPost,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			body:           `{"id":"1","status":"revoked","links":[]}`,
			expectedStatus: http.StatusOK,
			expectCall:     true,
			expectDocument: true,
		},
		{
			name:           "post without a body fetches the document",
			method:         http.MethodPost,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			expectedStatus: http.StatusOK,
			expectCall:     true,
		},
		{
			name:           "malformed body",
			method:         http.MethodPost,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			body:           `{"status":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown status in body",
			method:         http.MethodPost,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			body:           `{"status":"lost","links":[]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "other library",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=other&loan_id=" + loanID.String(),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "loan id is not a uuid",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=main&loan_id=42",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown loan",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			updateErr:      circulation.ErrLoanNotFound,
			expectedStatus: http.StatusNotFound,
			expectCall:     true,
		},
		{
			name:           "distributor failure",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			updateErr:      errors.Join(loanstatus.ErrBadStatus, errors.New("status 500")),
			expectedStatus: http.StatusBadGateway,
			expectCall:     true,
		},
		{
			name:           "ledger failure",
			method:         http.MethodGet,
			target:         "/odl/notify?library_short_name=main&loan_id=" + loanID.String(),
			updateErr:      circulation.ErrPersistingLedgerFailed,
			expectedStatus: http.StatusInternalServerError,
			expectCall:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			updater := &loanUpdaterSpy{err: tc.updateErr}
			e := newEcho(&NotificationController{Loans: updater, Library: "main", Log: discardLogger()}, nil, discardLogger())

			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			request := httptest.NewRequest(tc.method, tc.target, body)
			recorder := httptest.NewRecorder()

			// act
			e.ServeHTTP(recorder, request)

			// assert
			assert.Equal(t, tc.expectedStatus, recorder.Code)

			if !tc.expectCall {
				assert.Empty(t, updater.calls)
				return
			}

			require.Len(t, updater.calls, 1)
			assert.Equal(t, loanID, updater.calls[0].loanID)
			assert.Equal(t, tc.expectDocument, updater.calls[0].document != nil)
		})
	}
}

func Test_NotificationController_Notify_ReportsChange(t *testing.T) {
	// arrange
	loanID := uuid.New()
	updater := &loanUpdaterSpy{result: updateloan.Result{HandlerResult: shell.NewSuccessResult(nil), Change: core.LoanRemoved}}
	e := newEcho(&NotificationController{Loans: updater, Library: "main", Log: discardLogger()}, nil, discardLogger())

	request := httptest.NewRequest(http.MethodPost, "/odl/notify?library_short_name=main&loan_id="+loanID.String(),
		strings.NewReader(`{"status":"returned","links":[]}`))
	recorder := httptest.NewRecorder()

	// act
	e.ServeHTTP(recorder, request)

	// assert
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"loan_id":"`+loanID.String()+`","change":"removed","idempotent":false}`, recorder.Body.String())
	assert.Equal(t, loanstatus.StatusReturned, updater.calls[0].document.Status)
}

func Test_Echo_ServesMetrics(t *testing.T) {
	// arrange
	metrics, err := promadapters.NewMetricsCollector()
	require.NoError(t, err)
	metrics.IncrementCounter(shell.CommandHandlerCallsMetric, shell.BuildCommandLabels("Checkout", "success"))

	e := newEcho(&NotificationController{Loans: &loanUpdaterSpy{}, Library: "main", Log: discardLogger()}, metrics.Handler(), discardLogger())
	recorder := httptest.NewRecorder()

	// act
	e.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), shell.CommandHandlerCallsMetric)
}

func Test_Echo_Healthz(t *testing.T) {
	// arrange
	e := newEcho(&NotificationController{Loans: &loanUpdaterSpy{}, Library: "main", Log: discardLogger()}, nil, discardLogger())
	recorder := httptest.NewRecorder()

	// act
	e.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// assert
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

// Test helper functions

type loanUpdateCall struct {
	loanID   uuid.UUID
	document *loanstatus.LoanStatusDocument
}

type loanUpdaterSpy struct {
	calls  []loanUpdateCall
	result updateloan.Result
	err    error
}

func (s *loanUpdaterSpy) UpdateLoan(
	_ context.Context,
	loanID uuid.UUID,
	document *loanstatus.LoanStatusDocument,
) (updateloan.Result, error) {

	s.calls = append(s.calls, loanUpdateCall{loanID: loanID, document: document})

	return s.result, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
