package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arencloud/iris/internal/db"
	"github.com/arencloud/iris/internal/models"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// Small in-memory session store behind an HMAC-signed cookie.
var (
	sessionMu sync.RWMutex
	sessions  = make(map[string]uint) // sessionID -> userID

	cookieSecret = []byte("iris-dev-secret")
)

const sessionCookie = "isess"

// SetCookieSecret replaces the development signing key; called from
// Router when APP_KEY is configured.
func SetCookieSecret(key string) {
	if key != "" {
		cookieSecret = []byte(key)
	}
}

func sign(value string) string {
	h := hmac.New(sha256.New, cookieSecret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func newSessionID() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sessionID + "." + sign(sessionID), Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, Expires: time.Now().Add(24 * time.Hour)})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
}

func splitSession(val string) (sid, sig string) {
	if i := strings.IndexByte(val, '.'); i >= 0 {
		return val[:i], val[i+1:]
	}
	return "", ""
}

func currentUser(r *http.Request) *models.User {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	sid, sig := splitSession(c.Value)
	if sid == "" || sig == "" || !hmac.Equal([]byte(sign(sid)), []byte(sig)) {
		return nil
	}
	sessionMu.RLock()
	uid, ok := sessions[sid]
	sessionMu.RUnlock()
	if !ok {
		return nil
	}
	var u models.User
	if err := db.DB.First(&u, uid).Error; err != nil {
		return nil
	}
	return &u
}

func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u != nil {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if u == nil {
			http.Error(w, "unauthorized", 401)
			return
		}
		if u.Role != "admin" {
			http.Error(w, "forbidden", 403)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func registerAuth(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", login)
		r.Post("/change-password", changePassword)
		r.Get("/me", me)
		r.Post("/logout", logout)
		// Bootstrap status (unauthenticated): whether default admin must change password
		r.Get("/bootstrap", authBootstrap)
	})
}

func login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var in struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	var u models.User
	if err := db.DB.Where("email = ?", in.Email).First(&u).Error; err != nil {
		http.Error(w, "invalid credentials", 401)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.Password)) != nil {
		http.Error(w, "invalid credentials", 401)
		return
	}
	sid := newSessionID()
	sessionMu.Lock()
	sessions[sid] = u.ID
	sessionMu.Unlock()
	setSessionCookie(w, sid)
	json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "mustChangePassword": u.MustChangePassword})
}

func changePassword(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	var in struct{ OldPassword, NewPassword string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if len(in.NewPassword) < 8 {
		http.Error(w, "password too short", 400)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.OldPassword)) != nil {
		http.Error(w, "invalid old password", 400)
		return
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	u.Password = string(hash)
	u.MustChangePassword = false
	if err := db.DB.Save(u).Error; err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func me(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	u := currentUser(r)
	if u == nil {
		http.Error(w, "unauthorized", 401)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"id": u.ID, "email": u.Email, "role": u.Role, "mustChangePassword": u.MustChangePassword})
}

func logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if sid, _ := splitSession(c.Value); sid != "" {
			sessionMu.Lock()
			delete(sessions, sid)
			sessionMu.Unlock()
		}
	}
	clearSessionCookie(w)
	w.WriteHeader(204)
}

// authBootstrap reports whether the bootstrap admin still must change its
// temporary password, so the UI can show the first-run notice.
func authBootstrap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var u models.User
	show := db.DB.Where("email = ? AND must_change_password = ?", "admin@local", true).First(&u).Error == nil
	json.NewEncoder(w).Encode(map[string]any{"showTempNotice": show})
}
