package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/carzavenue/backend/api/middleware"
	"github.com/carzavenue/backend/api/responses"
	"github.com/carzavenue/backend/api/validators"
	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
	pkgerrors "github.com/carzavenue/backend/pkg/errors"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/pagination"
)

const idempotencyHeader = "Idempotency-Key"

// LedgerReader serves account and history lookups.
type LedgerReader interface {
	ListAccounts(ctx context.Context, userID int64) ([]ledger.AccountView, error)
	ListLedger(ctx context.Context, params ledger.ListLedgerParams) (ledger.LedgerPage, error)
}

// LedgerWriter posts staff-initiated entries.
type LedgerWriter interface {
	ChargePackage(ctx context.Context, input ledger.PostEntryInput) (*models.LedgerEntry, error)
	CreditAccount(ctx context.Context, input ledger.PostEntryInput) (*models.LedgerEntry, error)
}

type chargeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3,alpha"`
	ReferenceType string          `json:"referenceType" validate:"omitempty,max=64"`
	ReferenceID   string          `json:"referenceId" validate:"omitempty,max=128"`
}

type creditRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3,alpha"`
	Type          string          `json:"type" validate:"omitempty,oneof=TOPUP REFUND ADJUSTMENT"`
	ReferenceType string          `json:"referenceType" validate:"omitempty,max=64"`
	ReferenceID   string          `json:"referenceId" validate:"omitempty,max=128"`
}

// MyAccounts lists the caller's accounts.
func MyAccounts(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAccounts(w, r, svc, logg, userID)
	}
}

// MyLedger pages through the caller's ledger history.
func MyLedger(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeLedger(w, r, svc, logg, userID)
	}
}

func AdminUserAccounts(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAccounts(w, r, svc, logg, userID)
	}
}

func AdminUserLedger(svc LedgerReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeLedger(w, r, svc, logg, userID)
	}
}

// AdminChargeUser posts a manual package charge. The Idempotency-Key header
// becomes the entry's idempotency key.
func AdminChargeUser(svc LedgerWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := requireIdempotencyKey(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req chargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.ChargePackage(ctx, ledger.PostEntryInput{
			UserID:         userID,
			Currency:       req.Currency,
			Amount:         req.Amount,
			ReferenceType:  strings.TrimSpace(req.ReferenceType),
			ReferenceID:    strings.TrimSpace(req.ReferenceID),
			IdempotencyKey: key,
			Actor:          callerRef(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.NewLedgerEntryView(*entry))
	}
}

// AdminCreditUser posts a top-up, refund or adjustment.
func AdminCreditUser(svc LedgerWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		key, err := requireIdempotencyKey(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req creditRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.CreditAccount(ctx, ledger.PostEntryInput{
			UserID:         userID,
			Currency:       req.Currency,
			Amount:         req.Amount,
			EntryType:      enums.LedgerEntryType(req.Type),
			ReferenceType:  strings.TrimSpace(req.ReferenceType),
			ReferenceID:    strings.TrimSpace(req.ReferenceID),
			IdempotencyKey: key,
			Actor:          callerRef(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger.NewLedgerEntryView(*entry))
	}
}

func writeAccounts(w http.ResponseWriter, r *http.Request, svc LedgerReader, logg *logger.Logger, userID int64) {
	accounts, err := svc.ListAccounts(r.Context(), userID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.AccountView{}
	}
	responses.WriteSuccess(w, accounts)
}

func writeLedger(w http.ResponseWriter, r *http.Request, svc LedgerReader, logg *logger.Logger, userID int64) {
	params, err := parseLedgerParams(r, userID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	page, err := svc.ListLedger(r.Context(), params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if page.Items == nil {
		page.Items = []ledger.LedgerEntryView{}
	}
	responses.WriteSuccess(w, page)
}

func parseLedgerParams(r *http.Request, userID int64) (ledger.ListLedgerParams, error) {
	query := r.URL.Query()
	params := ledger.ListLedgerParams{
		UserID:   userID,
		Currency: strings.TrimSpace(query.Get("currency")),
		Cursor:   strings.TrimSpace(query.Get("cursor")),
	}

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return params, err
	}
	params.Limit = limit

	if raw := strings.TrimSpace(query.Get("type")); raw != "" {
		parsed, err := enums.ParseLedgerEntryType(strings.ToUpper(raw))
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type")
		}
		params.Type = &parsed
	}
	if raw := strings.TrimSpace(query.Get("direction")); raw != "" {
		parsed, err := enums.ParseLedgerDirection(strings.ToUpper(raw))
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction")
		}
		params.Direction = &parsed
	}

	if params.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return params, err
	}
	if params.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return params, err
	}
	return params, nil
}

func callerID(r *http.Request) (int64, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

func callerRef(r *http.Request) *outbox.ActorRef {
	userID := middleware.UserIDFromContext(r.Context())
	if userID <= 0 {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: string(middleware.RoleFromContext(r.Context()))}
}

func pathUserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "userID"))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "userID must be a positive integer")
	}
	return userID, nil
}

func requireIdempotencyKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}
	if len(key) > ledger.MaxIdempotencyKeyLength {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key must be at most %d characters", ledger.MaxIdempotencyKeyLength)
	}
	return key, nil
}
