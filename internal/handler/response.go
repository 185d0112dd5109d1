// Package handler is the HTTP layer: it turns requests into service calls
// and service results into JSON.
//
// WHAT A HANDLER DOES (AND DOES NOT DO):
//  1. Read the path, query and body (chi.URLParam, decodeJSON, formFile)
//  2. Read the caller from the context (auth.ActorFromContext)
//  3. Call one service method
//  4. Write the result with writeJSON, or the error with writeError
//
// Ownership, visibility and validation rules are not checked here. They
// live in the service layer so every entry point enforces them the same
// way; a handler that forgot a check would otherwise open a hole.
//
// CONSUMER-SIDE INTERFACES:
// Each handler declares the small interface it needs (RecipeService,
// UserService, AuthService) instead of importing a concrete type. The
// *service.RecipeService satisfies it implicitly, and a test could hand in
// a stub with the same method set.
package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// JSON shape for success and one for failure:
//
//   {"error": "not_found", "message": "recipe not found"}
//   {"error": "validation_error", "message": "Validation errors",
//    "errors": {"name": ["Missing data for required field."]}}
//
// Services return apperror values; the mapping to status codes lives only
// here.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smilecook/internal/apperror"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string              `json:"error"`            // machine-readable type, e.g. "not_found"
	Message string              `json:"message"`          // human-readable description
	Errors  map[string][]string `json:"errors,omitempty"` // per-field validation messages
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything after it is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its status code and sends it. Errors
// that carry no apperror sentinel are logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, errorType := statusOf(err)
	resp := ErrorResponse{Error: errorType, Message: appErr.Message}
	if status == http.StatusBadRequest {
		resp.Errors = appErr.Fields
	}
	writeJSON(w, status, resp)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. Malformed input is a validation
// error so clients get a 400 with the usual envelope.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("_body", "Missing JSON body")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperror.ValidationFailed(typeErr.Field, "Not a valid "+typeErr.Type.String()+".")
		}
		return apperror.ValidationFailed("_body", "Invalid JSON body")
	}
	return nil
}

// recipeID reads {id} from the route. A non-numeric id cannot name a
// recipe, so it is a 404 rather than a 400.
func recipeID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.NotFound("recipe")
	}
	return id, nil
}

// queryInt reads a positive integer query parameter; anything else yields
// 0 so the repository defaults apply.
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
