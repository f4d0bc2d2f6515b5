// Package orders serves the buyer's order history and detail views.
package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/api/middleware"
	"github.com/angelmondragon/gogift-backend/api/responses"
	internalorders "github.com/angelmondragon/gogift-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

type ordersService interface {
	Get(ctx context.Context, buyerID, orderID uuid.UUID) (*internalorders.OrderView, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
}

// Mine pages the caller's orders, newest first.
func Mine(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		buyerID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := pagination.FromQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		list, err := svc.ListForBuyer(ctx, buyerID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order with its codes. Orders of other buyers are reported as missing.
func Detail(svc ordersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		buyerID, err := callerID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rawOrderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		if rawOrderID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id is required"))
			return
		}
		orderID, err := uuid.Parse(rawOrderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		view, err := svc.Get(ctx, buyerID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func callerID(ctx context.Context) (uuid.UUID, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok || id.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return id.UserID, nil
}
