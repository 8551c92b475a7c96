package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	convapp "github.com/tallyline/backend/internal/application/conversation"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/application/reconciliation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/interfaces/http/dto"
	"github.com/tallyline/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// mockSubmitter is a mock implementation of MessageSubmitter
type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, msg convapp.InboundMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// mockProcessor is a mock implementation of WebhookProcessor
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, rawBody []byte, signature string) (*reconciliation.WebhookResult, error) {
	args := m.Called(ctx, rawBody, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.WebhookResult), args.Error(1)
}

// mockFinder is a mock implementation of InvoiceFinder
type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) FindByRef(ctx context.Context, ref ledgerapp.InvoiceRef) (*ledger.Invoice, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Invoice), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_HandleDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped", fmt.Errorf("lookup: %w", ledger.ErrInvalidAmount), http.StatusUnprocessableEntity, dto.ErrCodeInvalidAmount},
		{"conflict", shared.NewDomainError("CONCURRENCY_CONFLICT", "Invoice changed"), http.StatusConflict, dto.ErrCodeConcurrency},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDKey, "req-1")

			h.HandleDomainError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "disk on fire")
		})
	}
}
