// Package validation lets enterprises check and consume the codes sold on
// their listings.
package validation

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/api/middleware"
	"github.com/angelmondragon/gogift-backend/api/responses"
	"github.com/angelmondragon/gogift-backend/internal/redemption"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
)

const maxCodeLength = 64

type redemptionService interface {
	Lookup(ctx context.Context, enterpriseID uuid.UUID, value string) (*redemption.CodeDetails, error)
	Redeem(ctx context.Context, req redemption.RedeemRequest) (*redemption.RedeemResult, error)
	History(ctx context.Context, enterpriseID uuid.UUID, status enums.OrderLineStatus, params pagination.Params) (*redemption.HistoryPage, error)
}

// Lookup reports who owns a code and whether it was already used.
func Lookup(svc redemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := enterpriseCaller(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		code, err := codeParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		details, err := svc.Lookup(ctx, *identity.EnterpriseID, code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, details)
	}
}

// Use marks a code as redeemed.
func Use(svc redemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := enterpriseCaller(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		code, err := codeParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Redeem(ctx, redemption.RedeemRequest{
			EnterpriseID: *identity.EnterpriseID,
			UserID:       identity.UserID,
			Code:         code,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "order_line_id", result.OrderLineID.String()), "code redeemed")
		}
		responses.WriteSuccess(w, result)
	}
}

// History pages the enterprise's redeemed lines.
func History(svc redemptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, err := enterpriseCaller(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := pagination.FromQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		var status enums.OrderLineStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err = enums.ParseOrderLineStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
		}

		page, err := svc.History(ctx, *identity.EnterpriseID, status, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func enterpriseCaller(ctx context.Context) (middleware.Identity, error) {
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok || identity.UserID == uuid.Nil {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if identity.EnterpriseID == nil || *identity.EnterpriseID == uuid.Nil {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.CodeNotAuthorized, "enterprise context required")
	}
	return identity, nil
}

func codeParam(r *http.Request) (string, error) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	if len(code) > maxCodeLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "code is too long")
	}
	return code, nil
}
