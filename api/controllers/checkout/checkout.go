// Package checkout exposes the buyer's purchase endpoint.
package checkout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gogift-backend/api/middleware"
	"github.com/angelmondragon/gogift-backend/api/responses"
	"github.com/angelmondragon/gogift-backend/api/validators"
	internalcheckout "github.com/angelmondragon/gogift-backend/internal/checkout"
	"github.com/angelmondragon/gogift-backend/internal/gifts"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gogift-backend/pkg/errors"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
)

type checkoutService interface {
	Execute(ctx context.Context, req internalcheckout.Request) (*internalcheckout.Result, error)
}

type checkoutRequest struct {
	Lines []lineRequest `json:"lines" validate:"required,min=1,max=20,dive"`
}

type lineRequest struct {
	ListingID uuid.UUID     `json:"listing_id" validate:"required"`
	Quantity  int           `json:"quantity" validate:"required,min=1,max=100"`
	Gifts     []giftRequest `json:"gifts" validate:"max=50,dive"`
}

type giftRequest struct {
	RecipientName  string `json:"recipient_name" validate:"required,max=120"`
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
	Message        string `json:"message" validate:"max=500"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
}

func (r checkoutRequest) toRequest(id middleware.Identity) internalcheckout.Request {
	req := internalcheckout.Request{
		Buyer: internalcheckout.Buyer{
			UserID: id.UserID,
			Email:  id.Email,
			Name:   validators.SanitizeString(id.Name, 120),
		},
		Lines: make([]internalcheckout.LineRequest, 0, len(r.Lines)),
	}
	if id.Role == enums.ActorRoleEnterprise {
		req.Buyer.EnterpriseID = id.EnterpriseID
	}
	for _, line := range r.Lines {
		lr := internalcheckout.LineRequest{ListingID: line.ListingID, Quantity: line.Quantity}
		for _, g := range line.Gifts {
			lr.Gifts = append(lr.Gifts, gifts.Request{
				RecipientName:  validators.SanitizeString(g.RecipientName, 120),
				RecipientEmail: validators.SanitizeString(g.RecipientEmail, 254),
				Message:        validators.SanitizeString(g.Message, 500),
				Quantity:       g.Quantity,
			})
		}
		req.Lines = append(req.Lines, lr)
	}
	return req
}

// Create reserves stock, persists a PENDING order and returns the payment redirect.
func Create(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Execute(ctx, body.toRequest(id))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
