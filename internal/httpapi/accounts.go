package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fenggwsx/roomcast/internal/auth"
)

// CredentialsRequest is the body of register and login calls.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (c *CredentialsRequest) normalize() {
	c.Username = strings.TrimSpace(c.Username)
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
}

// Register creates an account and signs the caller in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "Please provide a username (3-32 characters) and a password (6-72 characters)")
		return
	}

	token, err := h.accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			h.Error(w, http.StatusConflict, "Username already taken")
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("register failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.issue(w, http.StatusCreated, token)
}

// Login exchanges credentials for a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		h.Error(w, http.StatusBadRequest, "Please provide username and password")
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidPayload) {
			h.Error(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("login failed")
		h.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.issue(w, http.StatusOK, token)
}

func (h *Handler) issue(w http.ResponseWriter, status int, token auth.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token.Token,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.JSON(w, status, TokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		UserID:    token.UserID,
		Username:  token.Username,
	})
}
