package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/library-circulation/internal/api_gateway/middleware"
	"github.com/library-circulation/internal/circulation/service"
)

// LoanHandler handles HTTP requests for the loan lifecycle
type LoanHandler struct {
	loans  service.LoanService
	logger *slog.Logger
}

func NewLoanHandler(logger *slog.Logger, loans service.LoanService) *LoanHandler {
	return &LoanHandler{
		loans:  loans,
		logger: logger,
	}
}

// Request claims the copy in the path for a borrower
func (h *LoanHandler) Request(c *gin.Context) {
	copyID, ok := parseIDParam(c, "id", "copy")
	if !ok {
		return
	}

	var req RequestLoanRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	actor := middleware.GetActor(c)
	borrowerID, err := borrowerOrSelf(req.BorrowerID, actor.ID)
	if err != nil {
		RespondBadRequest(c, "Invalid borrower ID")
		return
	}

	view, err := h.loans.RequestLoan(c.Request.Context(), actor, copyID, borrowerID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapLoanView(view))
}

func (h *LoanHandler) Get(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	view, err := h.loans.GetLoan(c.Request.Context(), middleware.GetActor(c), loanID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

// Approve starts the loan period and returns the pickup code
func (h *LoanHandler) Approve(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	view, err := h.loans.ApproveLoan(c.Request.Context(), middleware.GetActor(c), loanID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapApproval(view))
}

func (h *LoanHandler) Reject(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	var req ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.loans.RejectLoan(c.Request.Context(), middleware.GetActor(c), loanID, req.Reason)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

func (h *LoanHandler) Cancel(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	view, err := h.loans.CancelLoan(c.Request.Context(), middleware.GetActor(c), loanID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

// Pickup redeems the pickup code presented at the desk
func (h *LoanHandler) Pickup(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	var req RedeemPickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.loans.RedeemPickup(c.Request.Context(), middleware.GetActor(c), loanID, req.Code)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

func (h *LoanHandler) Return(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	var req ReturnLoanRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	view, err := h.loans.ReturnLoan(c.Request.Context(), middleware.GetActor(c), loanID, req.Damaged)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

func (h *LoanHandler) RequestExtension(c *gin.Context) {
	loanID, ok := parseIDParam(c, "id", "loan")
	if !ok {
		return
	}

	req, err := h.loans.RequestExtension(c.Request.Context(), middleware.GetActor(c), loanID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapExtension(req))
}

func (h *LoanHandler) ApproveExtension(c *gin.Context) {
	extensionID, ok := parseIDParam(c, "id", "extension")
	if !ok {
		return
	}

	view, err := h.loans.ApproveExtension(c.Request.Context(), middleware.GetActor(c), extensionID)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanView(view))
}

func (h *LoanHandler) RejectExtension(c *gin.Context) {
	extensionID, ok := parseIDParam(c, "id", "extension")
	if !ok {
		return
	}

	var req ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ext, err := h.loans.RejectExtension(c.Request.Context(), middleware.GetActor(c), extensionID, req.Reason)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapExtension(ext))
}
