package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"forkline.io/internal/auth"
	"forkline.io/internal/crm"
	"forkline.io/internal/fault"
)

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	RestaurantID string `json:"restaurant_id"`
}

// login exchanges form credentials for a bearer token. The failure
// message never reveals which part of the credentials was wrong.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.ctrl.Authenticate(r.Context(), username, password)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	if user == nil {
		a.auditor.Event(r.Context(), "auth.login.denied", zap.String("username", username))
		writeError(w, r, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	token, err := a.ctrl.CreateToken(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.auditor.Event(r.Context(), "auth.login", zap.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, token)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role := auth.RoleStaff
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role = parsed
	}

	user, err := a.svc.CreateContact(r.Context(), crm.NewContact{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Password:     req.Password,
		Role:         role,
		RestaurantID: req.RestaurantID,
	})
	if err != nil {
		handleFault(w, r, err)
		return
	}

	a.auditor.Event(r.Context(), "auth.register", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := principal(r)
	if err != nil {
		handleFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"permissions": user.Permissions(),
	})
}

func pathID(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		return "", fault.NotFoundf("resource not found")
	}
	return id, nil
}
