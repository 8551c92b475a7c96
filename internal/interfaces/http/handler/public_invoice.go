package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/tallyline/backend/internal/application/ledger"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/interfaces/http/dto"
	"github.com/tallyline/backend/internal/interfaces/http/middleware"
)

// InvoiceFinder resolves an invoice reference
type InvoiceFinder interface {
	FindByRef(ctx context.Context, ref ledgerapp.InvoiceRef) (*ledger.Invoice, error)
}

// PublicInvoiceHandler serves the unauthenticated balance view customers
// open from a shared code. It has no mutation path.
type PublicInvoiceHandler struct {
	BaseHandler
	invoices InvoiceFinder
}

// NewPublicInvoiceHandler creates a new PublicInvoiceHandler
func NewPublicInvoiceHandler(invoices InvoiceFinder) *PublicInvoiceHandler {
	return &PublicInvoiceHandler{invoices: invoices}
}

// InvoiceCodeRequest binds the code path parameter
type InvoiceCodeRequest struct {
	Code string `uri:"code" binding:"required,shortcode"`
}

// Get godoc
//
//	@Summary		Show an invoice balance
//	@Tags			public
//	@Produce		json
//	@Param			code	path		string	true	"Invoice short code"
//	@Success		200		{object}	dto.Response{data=dto.InvoiceView}
//	@Failure		400		{object}	dto.Response
//	@Failure		404		{object}	dto.Response
//	@Router			/api/v1/public/invoices/{code} [get]
func (h *PublicInvoiceHandler) Get(c *gin.Context) {
	var req InvoiceCodeRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	inv, err := h.invoices.FindByRef(c.Request.Context(), ledgerapp.ByRef(ledger.NormalizeShortCode(req.Code)))
	if err != nil {
		if shared.IsNotFound(err) {
			h.NotFound(c, "Invoice not found")
			return
		}
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceView(inv))
}

func toInvoiceView(inv *ledger.Invoice) dto.InvoiceView {
	return dto.InvoiceView{
		Code:         inv.ShortCode,
		CustomerName: inv.CustomerName,
		Description:  inv.Description,
		Total:        inv.Total.StringFixed(2),
		AmountPaid:   inv.AmountPaid().StringFixed(2),
		Balance:      inv.Balance().StringFixed(2),
		Status:       string(inv.Status()),
		Confirmed:    inv.Confirmed,
		DueDate:      inv.DueDate,
		CreatedAt:    inv.CreatedAt,
	}
}
