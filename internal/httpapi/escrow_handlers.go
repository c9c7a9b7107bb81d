package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetcore.org/internal/auth"
	"fleetcore.org/internal/docs"
	"fleetcore.org/internal/escrow"
)

type openAccountRequest struct {
	ContractID string `json:"contract_id"`
}

type postTransactionRequest struct {
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

type createSettlementRequest struct {
	UnitID          string    `json:"unit_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TotalGross      int64     `json:"total_gross"`
	TotalDeductions int64     `json:"total_deductions"`
	TotalFuel       int64     `json:"total_fuel"`
	NetAmount       int64     `json:"net_amount"`
}

type createDocumentRequest struct {
	TypeCode   string     `json:"type_code"`
	Title      string     `json:"title"`
	Issuer     string     `json:"issuer"`
	IssueDate  *time.Time `json:"issue_date"`
	ExpiryDate *time.Time `json:"expiry_date"`
}

type recordVersionRequest struct {
	OCRText       *string  `json:"ocr_text"`
	OCRConfidence *float64 `json:"ocr_confidence"`
	FileURI       *string  `json:"file_uri"`
}

func (a *API) handleEscrowAccountsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req openAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.ops.OpenEscrowAccount(r.Context(), caller, req.ContractID)
	if err != nil {
		handleEscrowError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/escrow/accounts/%s", acc.ID))
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) handleEscrowAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/escrow/accounts/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	accountID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		acc, err := a.ops.GetEscrowAccount(r.Context(), caller, accountID)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req accountStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		status := escrow.AccountingStatus(req.Status)
		switch status {
		case escrow.AccountOpen, escrow.AccountFrozen, escrow.AccountClosed:
		default:
			writeError(w, r, http.StatusBadRequest, "unknown account status")
			return
		}
		acc, err := a.ops.SetEscrowAccountStatus(r.Context(), caller, accountID, status)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
		return
	}

	if len(parts) != 2 || parts[1] != "transactions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		txs, err := a.ops.ListEscrowTransactions(r.Context(), caller, accountID)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": txs})
	case http.MethodPost:
		var req postTransactionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tx, err := a.ops.PostEscrowTransaction(r.Context(), caller, accountID,
			escrow.TransactionType(req.Type), req.Amount, req.Reference)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleSettlementsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createSettlementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	stl, err := a.ops.CreateSettlement(r.Context(), caller, escrow.Settlement{
		UnitID:          req.UnitID,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		TotalGross:      req.TotalGross,
		TotalDeductions: req.TotalDeductions,
		TotalFuel:       req.TotalFuel,
		NetAmount:       req.NetAmount,
	})
	if err != nil {
		handleEscrowError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/settlements/%s", stl.ID))
	writeJSON(w, http.StatusCreated, stl)
}

func (a *API) handleSettlementResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/settlements/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	settlementID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		stl, err := a.ops.GetSettlement(r.Context(), caller, settlementID)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stl)
	case len(parts) == 2 && parts[1] == "issue":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		stl, err := a.ops.IssueSettlement(r.Context(), caller, settlementID)
		if err != nil {
			handleEscrowError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stl)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleDocumentsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := a.ops.CreateDocument(r.Context(), caller, docs.Document{
		TypeCode:   req.TypeCode,
		Title:      req.Title,
		Issuer:     req.Issuer,
		IssueDate:  req.IssueDate,
		ExpiryDate: req.ExpiryDate,
	})
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/documents/%s", doc.ID))
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	documentID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		doc, err := a.ops.GetDocument(r.Context(), caller, documentID)
		if err != nil {
			handleDocsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case len(parts) == 2 && parts[1] == "versions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req recordVersionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		v, err := a.ops.RecordDocumentVersion(r.Context(), caller, documentID, docs.VersionInput{
			OCRText:       req.OCRText,
			OCRConfidence: req.OCRConfidence,
			FileURI:       req.FileURI,
		})
		if err != nil {
			handleDocsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	case len(parts) == 2 && parts[1] == "validity":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		res, err := a.ops.CheckDocumentValidity(r.Context(), caller, documentID)
		if err != nil {
			handleDocsError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func handleEscrowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrUnknownTransactionType),
		errors.Is(err, escrow.ErrNetMismatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrAlreadyIssued),
		errors.Is(err, escrow.ErrAlreadyExists),
		errors.Is(err, escrow.ErrAccountClosed):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "escrow operation failed")
	}
}

func handleDocsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, docs.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, docs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "document operation failed")
	}
}
