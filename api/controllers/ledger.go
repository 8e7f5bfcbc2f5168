package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/shopsphere-backend/api/responses"
	"github.com/angelmondragon/shopsphere-backend/api/validators"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
)

func GetLedgerStatement(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		vendorID, err := validators.ParseVendorID(r, "vendor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		statement, err := svc.GetStatement(r.Context(), vendorID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statement)
	}
}

// VendorChecker confirms a vendor is registered.
type VendorChecker interface {
	Get(ctx context.Context, id int64) (*models.Vendor, error)
}

type advanceRequest struct {
	Amount int64  `json:"amount" validate:"gt=0"`
	Note   string `json:"note" validate:"max=500"`
}

type advanceResponse struct {
	Entry         any   `json:"entry"`
	LedgerBalance int64 `json:"ledger_balance"`
}

// RecordAdvance posts a credit that is not tied to a purchase, such as money
// paid to a vendor before any stock arrives.
func RecordAdvance(svc ledger.Service, vendorsSvc VendorChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || vendorsSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		vendorID, err := validators.ParseVendorID(r, "vendor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req advanceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := vendorsSvc.Get(r.Context(), vendorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PostEntry(r.Context(), ledger.PostEntryInput{
			VendorID: vendorID,
			Kind:     enums.LedgerEntryCredit,
			Amount:   req.Amount,
			Note:     validators.SanitizeString(req.Note, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(logg.WithVendorID(r.Context(), vendorID), map[string]any{
				"amount":  req.Amount,
				"balance": result.Balance,
			}), "vendor advance recorded")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, advanceResponse{Entry: result.Entry, LedgerBalance: result.Balance})
	}
}
