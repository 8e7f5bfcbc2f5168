package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/api/middleware"
	"github.com/angelmondragon/shopsphere-backend/api/responses"
	"github.com/angelmondragon/shopsphere-backend/api/validators"
	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
)

type settleCashInRequest struct {
	Vendor      int64  `json:"vendor" validate:"required,gt=0"`
	PurchaseRef string `json:"purchase_ref" validate:"required,uuid"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Note        string `json:"note" validate:"max=500"`
}

func SettleCashIn(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		var req settleCashInRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		purchaseID, err := uuid.Parse(req.PurchaseRef)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid purchase reference"))
			return
		}

		result, err := svc.SettleCashIn(r.Context(), settlement.CashInInput{
			VendorID:   req.Vendor,
			PurchaseID: purchaseID,
			Amount:     req.Amount,
			Note:       validators.SanitizeString(req.Note, maxNoteLength),
			Actor:      middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetSettlementOperation(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "operationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		op, err := svc.GetOperation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, op)
	}
}
