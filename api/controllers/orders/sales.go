package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/api/middleware"
	"github.com/angelmondragon/gogift-backend/api/responses"
	"github.com/angelmondragon/gogift-backend/api/validators"
	internalorders "github.com/angelmondragon/gogift-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

const (
	minSalesYear = 2000
	maxSalesYear = 2100
)

type salesService interface {
	ListSalesForEnterprise(ctx context.Context, q internalorders.SalesQuery) (*internalorders.SalesPage, error)
}

// Sales pages the approved lines sold by the caller's enterprise, optionally
// narrowed by listing_id, year and month.
func Sales(svc salesService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok || identity.UserID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		if identity.EnterpriseID == nil || *identity.EnterpriseID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotAuthorized, "enterprise context required"))
			return
		}

		query := internalorders.SalesQuery{EnterpriseID: *identity.EnterpriseID}
		if raw := strings.TrimSpace(r.URL.Query().Get("listing_id")); raw != "" {
			listingID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid listing id"))
				return
			}
			query.ListingID = &listingID
		}
		year, err := validators.ParseQueryInt(r, "year", 0, minSalesYear, maxSalesYear)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		query.Year, query.Month = year, month

		query.Page, err = pagination.FromQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		page, err := svc.ListSalesForEnterprise(ctx, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
