package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetcore.org/internal/audit"
	"fleetcore.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserStatusRequest struct {
	Status string `json:"status"`
}

type createRoleRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type roleGrantRequest struct {
	RoleID string `json:"role_id"`
}

type permissionGrantRequest struct {
	PermissionCode string `json:"permission_code"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	roles, err := a.auth.RoleCodesForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "role resolution failed")
		return
	}
	token, err := auth.GenerateToken(user.ID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token_issued", map[string]any{
		"user_id": user.ID,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(tokenTTL.Seconds()),
	})
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	if !a.ops.Authorize(r.Context(), caller, auth.PermManageUsers) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.RegisterUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.created", map[string]any{
		"created_user_id": user.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "roles":
		a.handleUserRoles(w, r, userID)
	case "status":
		a.handleUserStatus(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	if !a.ops.Authorize(r.Context(), caller, auth.PermManageUsers) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req roleGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := a.auth.GrantRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.granted", map[string]any{
			"target_user_id": userID, "role_id": req.RoleID,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.auth.RevokeRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.revoked", map[string]any{
			"target_user_id": userID, "role_id": req.RoleID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	if !a.ops.Authorize(r.Context(), caller, auth.PermManageUsers) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req updateUserStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.SetUserStatus(r.Context(), userID, req.Status)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.status_changed", map[string]any{
		"target_user_id": userID, "status": user.Status,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	if !a.ops.Authorize(r.Context(), caller, auth.PermManageRoles) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.auth.CreateRole(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.created", map[string]any{
		"role_id": role.ID, "code": role.Code,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]

	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	if !a.ops.Authorize(r.Context(), caller, auth.PermManagePermissions) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	var req permissionGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.PermissionCode = strings.TrimSpace(req.PermissionCode)
	if req.PermissionCode == "" {
		writeError(w, r, http.StatusBadRequest, "permission_code is required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := a.auth.GrantPermissionByCode(r.Context(), roleID, req.PermissionCode); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.granted", map[string]any{
			"role_id": roleID, "permission_code": req.PermissionCode,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrUnknownPermission),
		errors.Is(err, auth.ErrUnknownRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
