package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/zoe-analytics/zoe/pkg/apperr"
)

const sessionCookieName = "zoe_session"

// sessionSigner signs and verifies the "<uid>.<role>" session token carried
// by the zoe_session cookie, the way the manager's TokenManager signs join
// tokens: an HMAC over the payload, rather than a JWT library, since the
// payload here is two known-shape fields and nothing more.
type sessionSigner struct {
	key []byte
}

func newSessionSigner(key string) sessionSigner {
	return sessionSigner{key: []byte(key)}
}

func (s sessionSigner) sign(uid, role string) string {
	payload := uid + "." + role
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (s sessionSigner) verify(token string) (uid, role string, ok bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", "", false
	}
	uid, role, sig := parts[0], parts[1], parts[2]
	payload := uid + "." + role
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return "", "", false
	}
	return uid, role, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginHandler verifies a username/password against the user store and, on
// success, sets a signed zoe_session cookie carrying "<uid>.<role>".
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Auth, "malformed login request"))
		return
	}

	user, err := s.manager.GetUserByName(req.Username)
	if err != nil {
		writeError(w, apperr.New(apperr.Auth, "invalid username or password"))
		return
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, apperr.New(apperr.Auth, "invalid username or password"))
		return
	}

	token := s.sessions.sign(user.ID, string(user.Role))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"uid": user.ID, "role": string(user.Role)})
}

// authenticate resolves the caller's identity from either HTTP Basic
// credentials checked against the user store, or the signed session
// cookie set by loginHandler. Basic is tried first since it carries an
// explicit, revocable credential on every request.
func (s *Server) authenticate(r *http.Request) (uid, role string, err error) {
	if username, password, ok := r.BasicAuth(); ok {
		user, lookupErr := s.manager.GetUserByName(username)
		if lookupErr != nil || user.PasswordHash == "" {
			return "", "", apperr.New(apperr.Auth, "invalid username or password")
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return "", "", apperr.New(apperr.Auth, "invalid username or password")
		}
		return user.ID, string(user.Role), nil
	}

	cookie, cookieErr := r.Cookie(sessionCookieName)
	if cookieErr != nil {
		return "", "", apperr.New(apperr.Auth, "missing credentials")
	}
	uid, role, ok := s.sessions.verify(cookie.Value)
	if !ok {
		return "", "", apperr.New(apperr.Auth, "invalid or expired session")
	}
	return uid, role, nil
}

// requireAuth wraps a handler so it only runs once the caller is
// authenticated; uid and role are stashed in the request context for the
// handler to read via callerFrom.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, role, err := s.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(withCaller(r.Context(), uid, role)))
	}
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// types.User.PasswordHash.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
