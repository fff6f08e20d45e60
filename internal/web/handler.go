// Package web serves the todo list as server-rendered HTML. Every browser
// gets its own session context and view state machine.
package web

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"todolist/internal/model"
	"todolist/internal/session"
	"todolist/internal/view"
)

// The signed cookie session carries the client id, the session token and
// the pending OAuth state.
const (
	cookieName    = "todolist"
	keyClient     = "client"
	keyToken      = "token"
	keyOAuthState = "oauth_state"
)

const msgGoogleFailed = "Sign-in with Google failed. Please try again."

// Authenticator is the part of the auth service the web layer needs beyond
// what the state machine drives.
type Authenticator interface {
	Restore(ctx context.Context, sess *session.Context, token string) (*model.User, error)
	Verify(ctx context.Context, sess *session.Context) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	GoogleAuthURL(state string) (string, error)
	FederationEnabled() bool
}

// Options configures the web handler.
type Options struct {
	Auth     Authenticator
	Registry *Registry
	// Secret signs the cookie session.
	Secret string
	// SessionTTL is the lifetime of the cookie session.
	SessionTTL time.Duration
	// SecureCookies marks cookies as HTTPS-only.
	SecureCookies bool
}

// Handler serves the todo list web client.
type Handler struct {
	auth      Authenticator
	registry  *Registry
	store     *sessions.CookieStore
	router    *mux.Router
	templates *templateWrapper
}

// NewHandler creates a new web handler.
func NewHandler(opts Options) *Handler {
	store := sessions.NewCookieStore([]byte(opts.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if opts.SessionTTL > 0 {
		store.MaxAge(int(opts.SessionTTL / time.Second))
	}

	h := &Handler{
		auth:      opts.Auth,
		registry:  opts.Registry,
		store:     store,
		templates: newTemplateWrapper(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", h.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/auth/mode", h.withClient(h.handleAuthMode)).Methods(http.MethodPost)
	r.HandleFunc("/auth/signin", h.withClient(h.handleSignIn)).Methods(http.MethodPost)
	r.HandleFunc("/auth/signup", h.withClient(h.handleSignUp)).Methods(http.MethodPost)
	r.HandleFunc("/auth/reset", h.withClient(h.handleReset)).Methods(http.MethodPost)
	r.HandleFunc("/auth/google", h.handleGoogleStart).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/callback", h.handleGoogleCallback).Methods(http.MethodGet)
	r.HandleFunc("/reset/{token}", h.handleResetPage).Methods(http.MethodGet)
	r.HandleFunc("/reset/{token}", h.handleResetConfirm).Methods(http.MethodPost)
	r.HandleFunc("/signout", h.withClient(h.handleSignOut)).Methods(http.MethodPost)

	r.HandleFunc("/todos", h.withClient(h.handleTodoCreate)).Methods(http.MethodPost)
	r.HandleFunc("/todos/{id}/toggle", h.withClient(h.handleTodoToggle)).Methods(http.MethodPost)
	r.HandleFunc("/todos/{id}/delete", h.withClient(h.handleTodoDelete)).Methods(http.MethodPost)
	r.HandleFunc("/filter", h.withClient(h.handleFilter)).Methods(http.MethodPost)

	r.HandleFunc("/profile", h.withClient(h.handleProfileOpen)).Methods(http.MethodPost)
	r.HandleFunc("/profile/close", h.withClient(h.handleProfileClose)).Methods(http.MethodPost)
	r.HandleFunc("/profile/username", h.withClient(h.handleProfileUsername)).Methods(http.MethodPost)
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

type clientHandler func(w http.ResponseWriter, r *http.Request, c *Client)

// withClient resolves the client, runs the action and redirects back to the
// page. The cookie session follows whatever the action did to the session.
func (h *Handler) withClient(fn clientHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		s := h.cookieSession(r)
		c := h.client(r, s)
		fn(w, r, c)
		h.save(w, r, s, c)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// cookieSession returns the signed cookie session of the request. A cookie
// that fails verification yields an empty session.
func (h *Handler) cookieSession(r *http.Request) *sessions.Session {
	s, err := h.store.Get(r, cookieName)
	if err != nil {
		log.Printf("[info] cookie session rejected: %v", err)
	}
	return s
}

// existingClient returns the registered client of the cookie session, or nil.
// A client whose provider session has ended is signed out first.
func (h *Handler) existingClient(r *http.Request, s *sessions.Session) *Client {
	id, _ := s.Values[keyClient].(string)
	c, ok := h.registry.Get(id)
	if !ok {
		return nil
	}
	if err := h.auth.Verify(r.Context(), c.Session); err != nil {
		log.Printf("[info] session check client=%s: %v", c.ID, err)
	}
	return c
}

// client returns the client of the request, creating one when the cookie
// session has none.
func (h *Handler) client(r *http.Request, s *sessions.Session) *Client {
	if c := h.existingClient(r, s); c != nil {
		return c
	}
	return h.newClient(r, s)
}

// newClient registers a client and signs it back in from the stored token.
func (h *Handler) newClient(r *http.Request, s *sessions.Session) *Client {
	c := h.registry.Create()
	if token, _ := s.Values[keyToken].(string); token != "" {
		if _, err := h.auth.Restore(r.Context(), c.Session, token); err != nil {
			log.Printf("[info] stored session rejected client=%s: %v", c.ID, err)
		}
	}
	return c
}

// save writes the client id and its current token into the cookie session.
func (h *Handler) save(w http.ResponseWriter, r *http.Request, s *sessions.Session, c *Client) {
	if c != nil {
		s.Values[keyClient] = c.ID
		if token := c.Session.Token(); token != "" {
			s.Values[keyToken] = token
		} else {
			delete(s.Values, keyToken)
		}
	}
	if err := s.Save(r, w); err != nil {
		log.Printf("[warn] save cookie session: %v", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "OK")
}

// handleIndex renders the client's screen. A visitor without a client only
// gets one when a stored session has to be restored.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	s := h.cookieSession(r)
	c := h.existingClient(r, s)
	if token, _ := s.Values[keyToken].(string); c == nil && token != "" {
		c = h.newClient(r, s)
	}

	state := view.InitialState()
	var alerts []string
	if c != nil {
		h.save(w, r, s, c)
		state = c.Machine.Snapshot()
		alerts = c.Machine.TakeAlerts()
	}
	h.templates.Render(w, "page", pageData{
		State:          state,
		Alerts:         alerts,
		Filters:        filterOptions(state.Filter),
		GoogleEnabled:  h.auth.FederationEnabled(),
		DisplayName:    displayName(state),
		OngoingCount:   countOngoing(state.Todos),
		CompletedCount: len(state.Todos) - countOngoing(state.Todos),
	})
}

func (h *Handler) handleAuthMode(_ http.ResponseWriter, _ *http.Request, c *Client) {
	c.Machine.ToggleSignUp()
}

func (h *Handler) handleSignIn(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetEmail(formValue(r, "email"))
	c.Machine.SetPassword(r.PostFormValue("password"))
	c.Machine.SubmitSignIn(r.Context())
}

func (h *Handler) handleSignUp(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetUsername(formValue(r, "username"))
	c.Machine.SetEmail(formValue(r, "email"))
	c.Machine.SetPassword(r.PostFormValue("password"))
	c.Machine.SetConfirmPassword(r.PostFormValue("confirm_password"))
	c.Machine.SubmitSignUp(r.Context())
}

func (h *Handler) handleReset(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetEmail(formValue(r, "email"))
	c.Machine.SubmitReset(r.Context())
}

func (h *Handler) handleSignOut(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SignOut(r.Context())
}

func (h *Handler) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	s := h.cookieSession(r)

	state, err := randomState()
	if err != nil {
		log.Printf("[warn] oauth state: %v", err)
		h.alert(w, r, s, msgGoogleFailed)
		return
	}
	target, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		h.alert(w, r, s, err.Error())
		return
	}
	s.Values[keyOAuthState] = state
	h.save(w, r, s, nil)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	s := h.cookieSession(r)
	c := h.client(r, s)
	expected, _ := s.Values[keyOAuthState].(string)
	delete(s.Values, keyOAuthState)

	query := r.URL.Query()
	switch {
	case query.Get("error") != "":
		log.Printf("[info] google sign in cancelled client=%s: %s", c.ID, query.Get("error"))
		c.Machine.Alert(msgGoogleFailed)
	case expected == "" || expected != query.Get("state"):
		log.Printf("[warn] google sign in state mismatch client=%s", c.ID)
		c.Machine.Alert(msgGoogleFailed)
	default:
		c.Machine.SignInWithGoogle(r.Context(), query.Get("code"))
	}

	h.save(w, r, s, c)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// alert shows msg on the client's next page.
func (h *Handler) alert(w http.ResponseWriter, r *http.Request, s *sessions.Session, msg string) {
	c := h.client(r, s)
	c.Machine.Alert(msg)
	h.save(w, r, s, c)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleResetPage(w http.ResponseWriter, r *http.Request) {
	h.templates.Render(w, "reset", resetData{Token: mux.Vars(r)["token"]})
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	password := r.PostFormValue("password")
	if password != r.PostFormValue("confirm_password") {
		h.templates.RenderStatus(w, http.StatusBadRequest, "reset", resetData{Token: token, Error: view.MsgPasswordsDontMatch})
		return
	}
	if err := h.auth.ConfirmPasswordReset(r.Context(), token, password); err != nil {
		h.templates.RenderStatus(w, http.StatusBadRequest, "reset", resetData{Token: token, Error: err.Error()})
		return
	}
	h.templates.Render(w, "reset", resetData{Done: true})
}

func (h *Handler) handleTodoCreate(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetTodoInput(r.PostFormValue("todo"))
	c.Machine.AddTodo(r.Context())
}

func (h *Handler) handleTodoToggle(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.Toggle(r.Context(), mux.Vars(r)["id"])
}

func (h *Handler) handleTodoDelete(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.Delete(r.Context(), mux.Vars(r)["id"])
}

func (h *Handler) handleFilter(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetFilter(model.ParseFilter(r.PostFormValue("filter")))
}

func (h *Handler) handleProfileOpen(_ http.ResponseWriter, _ *http.Request, c *Client) {
	c.Machine.ViewProfile()
}

func (h *Handler) handleProfileClose(_ http.ResponseWriter, _ *http.Request, c *Client) {
	c.Machine.GoToTodoList()
}

func (h *Handler) handleProfileUsername(_ http.ResponseWriter, r *http.Request, c *Client) {
	c.Machine.SetNewUsername(r.PostFormValue("username"))
	c.Machine.SubmitUsername(r.Context())
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func displayName(state view.State) string {
	if state.ProfileUsername != "" {
		return state.ProfileUsername
	}
	if state.User != nil {
		return state.User.Email
	}
	return ""
}

func countOngoing(tasks []model.Task) int {
	n := 0
	for _, t := range tasks {
		if !t.Completed {
			n++
		}
	}
	return n
}
