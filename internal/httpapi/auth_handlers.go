package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"maktab.org/internal/audit"
	"maktab.org/internal/auth"
	"maktab.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Secret   string `json:"secret"`
	TenantID string `json:"tenant_id,omitempty"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Secret   string `json:"secret"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Secret == "" {
		writeError(w, r, http.StatusBadRequest, "email and secret are required")
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Secret, req.TenantID, clientIP(r))
	if err != nil {
		obs.ObserveLogin("denied")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.login",
		zap.String("role", string(res.Role)),
		zap.String("ip", clientIP(r)),
	)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	requester, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	// Creation below school-admin level is never self-service.
	if !auth.IsAuthorized(requester.Role, auth.RoleSchoolAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	data := auth.NewPrincipalData{
		Email:    req.Email,
		Secret:   req.Secret,
		Role:     role,
		TenantID: req.TenantID,
	}

	res, err := a.auth.Register(r.Context(), data, requester, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register",
		zap.String("new_role", string(res.Role)),
		zap.String("tenant_id", req.TenantID),
	)
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	res, err := a.auth.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		obs.ObserveRotation("denied")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveRotation("ok")
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	if err := a.auth.Logout(r.Context(), req.RefreshToken, clientIP(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", zap.String("ip", clientIP(r)))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	requester, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !auth.IsAuthorized(requester.Role, auth.RoleSchoolAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	requestedTenant := r.URL.Query().Get("tenant_id")
	list, err := a.auth.ListPrincipals(r.Context(), requester, requestedTenant)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": list})
}
