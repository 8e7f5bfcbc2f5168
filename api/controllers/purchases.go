package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/api/middleware"
	"github.com/angelmondragon/shopsphere-backend/api/responses"
	"github.com/angelmondragon/shopsphere-backend/api/validators"
	"github.com/angelmondragon/shopsphere-backend/internal/purchases"
	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
)

const maxNoteLength = 500

// placePurchaseRequest carries no total; the system always derives it.
type placePurchaseRequest struct {
	Vendor    int64  `json:"vendor" validate:"required,gt=0"`
	Product   string `json:"product" validate:"required,uuid"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
	Note      string `json:"note" validate:"max=500"`
}

func PlacePurchase(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		var req placePurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(req.Product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		result, err := svc.PlacePurchase(r.Context(), settlement.PlacePurchaseInput{
			VendorID:  req.Vendor,
			ProductID: productID,
			Quantity:  req.Quantity,
			UnitPrice: req.UnitPrice,
			Note:      validators.SanitizeString(req.Note, maxNoteLength),
			Actor:     middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListVendorPurchases returns a vendor's purchases, optionally filtered by
// status.
func ListVendorPurchases(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
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
		filter := purchases.ListParams{Pagination: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePurchaseStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = status
		}
		list, err := svc.ListByVendor(r.Context(), vendorID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type paymentDue struct {
	PurchaseID uuid.UUID `json:"id"`
	Vendor     int64     `json:"vendor_id"`
	Product    uuid.UUID `json:"product_id"`
	TotalPrice int64     `json:"total_price"`
}

// ListPaymentsDue is the billing projection of a vendor's unpaid purchases.
func ListPaymentsDue(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}
		vendorID, err := validators.ParseQueryVendorID(r, "v")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unpaid, err := svc.ListUnpaid(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]paymentDue, 0, len(unpaid))
		for _, p := range unpaid {
			out = append(out, paymentDue{PurchaseID: p.ID, Vendor: p.VendorID, Product: p.ProductID, TotalPrice: p.TotalPrice})
		}
		responses.WriteSuccess(w, out)
	}
}
