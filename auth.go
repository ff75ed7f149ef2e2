package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"shipyard_report/editor"
	"shipyard_report/store"
)

const sessionName = "session"

type userKey struct{}

func newSessionStore(secret string) *sessions.CookieStore {
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.Path = "/"
	s.Options.HttpOnly = true
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func (a *app) loginHandler(w http.ResponseWriter, r *http.Request) {
	var credentials Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	u, err := a.backend.UserByUsername(r.Context(), credentials.Username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Error("login lookup")
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(credentials.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	session, _ := a.sessions.Get(r, sessionName)
	if id, ok := session.Values["workspace_id"].(string); ok {
		a.workspaces.Close(id)
		delete(session.Values, "workspace_id")
	}
	session.Values["user_id"] = u.ID
	session.Values["username"] = u.Username
	session.Values["role"] = u.Role
	session.Values["last_activity"] = time.Now().Unix()
	if err := session.Save(r, w); err != nil {
		log.WithError(err).Error("save session")
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	log.WithFields(log.Fields{"user": u.Username, "role": u.Role}).Info("login")

	writeJSON(w, http.StatusOK, userFromStore(u))
}

func (a *app) logoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := a.sessions.Get(r, sessionName)
	a.endSession(w, r, session)
	w.WriteHeader(http.StatusOK)
}

// endSession closes the session's workspace and expires its cookie.
func (a *app) endSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if id, ok := session.Values["workspace_id"].(string); ok {
		a.workspaces.Close(id)
	}
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	session.Save(r, w)
}

// activeSession returns the session user, ending sessions idle for longer
// than the configured limit.
func (a *app) activeSession(w http.ResponseWriter, r *http.Request) (*sessions.Session, editor.User, bool) {
	session, err := a.sessions.Get(r, sessionName)
	if err != nil && session == nil {
		http.Error(w, "Session error", http.StatusInternalServerError)
		return nil, editor.User{}, false
	}

	lastActivity, ok := session.Values["last_activity"].(int64)
	if !ok || time.Since(time.Unix(lastActivity, 0)) > a.cfg.SessionIdle {
		a.endSession(w, r, session)
		http.Error(w, "Session expired", http.StatusUnauthorized)
		return nil, editor.User{}, false
	}
	userID, ok := session.Values["user_id"].(string)
	if !ok || userID == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return nil, editor.User{}, false
	}
	role, _ := session.Values["role"].(string)

	session.Values["last_activity"] = time.Now().Unix()
	if err := session.Save(r, w); err != nil {
		log.WithError(err).Warn("refresh session")
	}
	return session, editor.User{ID: userID, Role: role}, true
}

func (a *app) checkAuthHandler(w http.ResponseWriter, r *http.Request) {
	_, su, ok := a.activeSession(w, r)
	if !ok {
		return
	}
	u, err := a.backend.UserByID(r.Context(), su.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.WithError(err).Error("check auth")
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, userFromStore(u))
}

func (a *app) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, u, ok := a.activeSession(w, r); ok {
			next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
		}
	}
}

func currentUser(r *http.Request) editor.User {
	u, _ := r.Context().Value(userKey{}).(editor.User)
	return u
}

func userFromStore(u store.User) User {
	return User{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}
