package controllers

import (
	"net/http"

	"github.com/carzavenue/backend/api/middleware"
	"github.com/carzavenue/backend/api/responses"
	"github.com/carzavenue/backend/api/validators"
	"github.com/carzavenue/backend/internal/paymentconfig"
	"github.com/carzavenue/backend/pkg/logger"
)

type updatePaymentConfigRequest struct {
	APIURL  string `json:"apiUrl" validate:"max=2048"`
	TestKey string `json:"testKey" validate:"max=512"`
	LiveKey string `json:"liveKey" validate:"max=512"`
	Mode    string `json:"mode" validate:"required"`
}

func AdminGetPaymentConfig(svc paymentconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetOrCreate(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminUpdatePaymentConfig overwrites the gateway configuration. The service
// rejects callers that are not administrators.
func AdminUpdatePaymentConfig(svc paymentconfig.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req updatePaymentConfigRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, err := svc.Update(ctx, paymentconfig.UpdateInput{
			APIURL:  req.APIURL,
			TestKey: req.TestKey,
			LiveKey: req.LiveKey,
			Mode:    req.Mode,
		}, paymentconfig.Actor{
			UserID: middleware.UserIDFromContext(ctx),
			Role:   middleware.RoleFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
