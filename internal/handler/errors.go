package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"aiaxstock/internal/middleware"
	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
	"aiaxstock/internal/service"
	"aiaxstock/pkg/apierror"
	"aiaxstock/pkg/response"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// writeError maps service and repository errors to API errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]apierror.FieldError, len(verr.Fields))
		for i, f := range verr.Fields {
			details[i] = apierror.FieldError{Field: f.Field, Message: f.Message}
		}
		response.Error(w, apierror.ValidationError("validation failed", details...))
	case errors.Is(err, repository.ErrNotFound):
		response.Error(w, apierror.NotFound(""))
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, apierror.Forbidden(""))
	case errors.Is(err, service.ErrInvalidRole):
		response.Error(w, apierror.BadRequest("role must be owner or admin"))
	case errors.Is(err, service.ErrUnknownIdentity):
		response.Error(w, apierror.Unauthorized("identifier not recognized for this role"))
	case errors.Is(err, service.ErrInvalidToken):
		response.Error(w, apierror.Unauthorized("Invalid or expired token"))
	case errors.Is(err, service.ErrDecrementFailed):
		response.Error(w, apierror.Conflict("stock changed while checking out, please retry"))
	case errors.Is(err, service.ErrCheckoutUnconfirmed):
		middleware.Logger(r.Context()).WithError(err).Warn("checkout outcome unconfirmed")
		response.Error(w, apierror.ServiceUnavailable("checkout may have completed, check your sales before retrying"))
	default:
		middleware.Logger(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
		response.Error(w, err)
	}
}

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return false
	}
	return true
}

// session returns the caller's session. The router only mounts handlers
// behind the session middleware, so a nil session is a wiring bug.
func session(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	s := middleware.SessionFromContext(r.Context())
	if s == nil {
		response.Error(w, apierror.Unauthorized(""))
		return nil, false
	}
	return s, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &service.ValidationError{Fields: []service.FieldError{{Field: name, Message: "must be an integer"}}}
	}
	return n, nil
}
