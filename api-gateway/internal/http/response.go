package http

import (
	"errors"
	"net/http"

	"github.com/fjod/partshop/api-gateway/internal/cart"
	"github.com/fjod/partshop/api-gateway/internal/checkout"
	"github.com/fjod/partshop/pkg/apiclient"
	"github.com/fjod/partshop/pkg/httputil"
	"github.com/sirupsen/logrus"
)

type ErrorResponse = httputil.ErrorBody

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSONResponse(w, status, data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	httputil.ErrorResponse(w, status, code, message)
}

// upstreamStatus keeps a collaborator's 4xx and turns anything worse into 502.
func upstreamStatus(status int) int {
	if status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}

// handleError maps domain and collaborator errors onto HTTP answers.
func handleError(w http.ResponseWriter, log *logrus.Entry, err error) {
	var (
		verr   *checkout.ValidationError
		cerr   *checkout.CollaboratorError
		apiErr *apiclient.Error
	)

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Error(), Code: "validation_failed", Details: verr.Field})
	case errors.As(err, &cerr):
		respondError(w, upstreamStatus(cerr.Status), "order_rejected", cerr.Message)
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		respondError(w, http.StatusConflict, "submission_in_flight", err.Error())
	case errors.Is(err, checkout.ErrInvalidStep):
		respondError(w, http.StatusConflict, "invalid_step", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrUnknownField):
		respondError(w, http.StatusBadRequest, "unknown_field", err.Error())
	case errors.Is(err, cart.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.As(err, &apiErr):
		code := apiErr.Code
		if code == "" {
			code = "upstream_error"
		}
		respondError(w, upstreamStatus(apiErr.Status), code, apiErr.Message)
	case errors.Is(err, apiclient.ErrUnavailable):
		log.WithError(err).Warn("Collaborator unavailable")
		respondError(w, http.StatusBadGateway, "service_unavailable", "service temporarily unavailable")
	case errors.Is(err, apiclient.ErrMalformedResponse):
		log.WithError(err).Error("Malformed collaborator response")
		respondError(w, http.StatusBadGateway, "bad_gateway", "unexpected response from upstream service")
	default:
		log.WithError(err).Error("Unhandled error")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
