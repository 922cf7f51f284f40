// Package api exposes the token registry as a JSON/REST surface under /v1.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/magnolialogic/go-apns-server/pkg/registry"
)

type RegistryAPI struct {
	Store    registry.Store
	Logger   *slog.Logger
	validate *validator.Validate
}

func NewRegistryAPI(store registry.Store, logger *slog.Logger) *RegistryAPI {
	return &RegistryAPI{
		Store:    store,
		Logger:   logger,
		validate: validator.New(),
	}
}

// Register wires every route onto the mux. The wrap hook lets the service
// layer apply middleware (CORS) uniformly.
func (api *RegistryAPI) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(h http.Handler) http.Handler { return h }
	}
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, wrap(h))
	}

	route("GET /v1/tokens", api.ListTokens)
	route("GET /v1/tokens/{bundleID}", api.ListTokensForBundle)
	route("GET /v1/token/{id}", api.GetToken)
	route("DELETE /v1/token/{id}", api.DeleteToken)
	route("GET /v1/users", api.ListUsers)
	route("GET /v1/users/{bundleID}", api.ListUsersForBundle)
	route("GET /v1/user/{id}", api.GetUser)
	route("GET /v1/user/{id}/tokens", api.ListTokensForUser)
	route("POST /v1/user/{id}", api.CreateUser)
	route("PUT /v1/user/{id}", api.ReplaceUser)
	route("PATCH /v1/user/{id}", api.RenameUser)
	route("DELETE /v1/user/{id}", api.DeleteUser)
}

// registrationRequest is the POST/PUT body. Exactly these three fields, all
// non-empty; unknown fields are rejected at decode time.
type registrationRequest struct {
	Name        string `json:"name" validate:"required"`
	BundleID    string `json:"bundle-id" validate:"required"`
	DeviceToken string `json:"device-token" validate:"required"`
}

// --- Token routes ---

func (api *RegistryAPI) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := api.Store.ListTokenIDs(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, tokens)
}

func (api *RegistryAPI) ListTokensForBundle(w http.ResponseWriter, r *http.Request) {
	tokens, err := api.Store.ListTokensForBundle(r.Context(), r.PathValue("bundleID"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, tokens)
}

func (api *RegistryAPI) GetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := api.Store.GetToken(ctx, r.PathValue("id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	// The token record carries the owner's display name for convenience.
	userName := ""
	if record, err := api.Store.GetUser(ctx, token.UserID); err == nil {
		userName = record.Name
	}

	api.writeJSON(w, r, http.StatusOK, map[string]string{
		"id":        token.ID,
		"bundle-id": token.BundleID,
		"user":      userName,
		"user-id":   token.UserID,
	})
}

func (api *RegistryAPI) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := api.Store.DeleteToken(r.Context(), id); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted", "token-id": id})
}

// --- User routes ---

func (api *RegistryAPI) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := api.Store.ListUserIDs(r.Context())
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, users)
}

func (api *RegistryAPI) ListUsersForBundle(w http.ResponseWriter, r *http.Request) {
	users, err := api.Store.ListUsersForBundle(r.Context(), r.PathValue("bundleID"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, users)
}

func (api *RegistryAPI) GetUser(w http.ResponseWriter, r *http.Request) {
	record, err := api.Store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, record)
}

func (api *RegistryAPI) ListTokensForUser(w http.ResponseWriter, r *http.Request) {
	tokens, err := api.Store.ListTokensForUser(r.Context(), r.PathValue("id"))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, tokens)
}

func (api *RegistryAPI) CreateUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	req, err := api.decodeRegistration(r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	user := registry.User{ID: userID, Name: req.Name}
	token := registry.Token{ID: req.DeviceToken, BundleID: req.BundleID, UserID: userID}
	if err := api.Store.CreateUser(r.Context(), user, token); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusCreated, map[string]string{"status": "created", "user-id": userID})
}

func (api *RegistryAPI) ReplaceUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	req, err := api.decodeRegistration(r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	user := registry.User{ID: userID, Name: req.Name}
	token := registry.Token{ID: req.DeviceToken, BundleID: req.BundleID, UserID: userID}
	created, err := api.Store.ReplaceUser(r.Context(), user, token)
	if err != nil {
		api.writeError(w, r, err)
		return
	}

	if created {
		api.writeJSON(w, r, http.StatusCreated, map[string]string{"status": "created", "user-id": userID})
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]string{"status": "updated", "user-id": userID})
}

func (api *RegistryAPI) RenameUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req struct {
		Name string `json:"name"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		api.writeError(w, r, registry.NewValidationError(map[string]string{"body": "malformed json"}))
		return
	}
	if req.Name == "" {
		api.writeError(w, r, registry.NewValidationError(map[string]string{"name": "required"}))
		return
	}

	if err := api.Store.RenameUser(r.Context(), userID, req.Name); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]string{"status": "updated", "user-id": userID})
}

func (api *RegistryAPI) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if err := api.Store.DeleteUser(r.Context(), userID); err != nil {
		api.writeError(w, r, err)
		return
	}
	api.writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted", "user-id": userID})
}

// --- Helpers ---

func (api *RegistryAPI) decodeRegistration(r *http.Request) (registrationRequest, error) {
	var req registrationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, registry.NewValidationError(map[string]string{"body": "malformed or unexpected json"})
	}

	if err := api.validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = "required"
			}
		}
		return req, registry.NewValidationError(fields)
	}
	return req, nil
}

func (api *RegistryAPI) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		api.Logger.Error("Failed to encode response", "path", r.URL.Path, "err", err)
		return
	}
	api.Logger.Info("Request handled", "method", r.Method, "path", r.URL.Path, "status", status)
}

// writeError maps the registry error taxonomy onto HTTP status codes in one
// place so every handler fails identically.
func (api *RegistryAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var verr *registry.ValidationError

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, registry.ErrNotModified):
		status = http.StatusNotModified
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrUserNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		api.Logger.Error("Storage failure", "method", r.Method, "path", r.URL.Path, "err", err)
	}

	api.Logger.Info("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)

	// 304 must not carry a body.
	if status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}
	response.WriteJSONError(w, status, err.Error())
}
