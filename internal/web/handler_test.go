package web

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"todolist/internal/identity"
	"todolist/internal/repository"
	"todolist/internal/service"
	"todolist/internal/session"
	"todolist/internal/testsupport"
	"todolist/internal/view"
)

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, body)
	return nil
}

func (m *captureMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

type testEnv struct {
	server   *httptest.Server
	handler  *Handler
	client   *http.Client
	registry *Registry
	mailer   *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testsupport.OpenDB(t)
	mailer := &captureMailer{}
	provider := identity.NewLocal(db, identity.Options{
		Secret:     "test",
		SessionTTL: time.Hour,
		Mailer:     mailer,
		ResetURL:   "http://todolist.test/reset/",
		BcryptCost: bcrypt.MinCost,
	})
	profiles := service.NewProfileService(repository.NewProfileRepository(db))
	tasks := service.NewTaskService(repository.NewTaskRepository(db))
	auth := service.NewAuthService(provider, nil, profiles)

	registry := NewRegistry(func(sess *session.Context) *view.Machine {
		return view.New(view.Options{Session: sess, Auth: auth, Profiles: profiles, Tasks: tasks})
	}, time.Hour)
	t.Cleanup(registry.Close)

	handler := NewHandler(Options{Auth: auth, Registry: registry, Secret: "test", SessionTTL: time.Hour})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{server: server, handler: handler, client: newBrowser(t), registry: registry, mailer: mailer}
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (e *testEnv) post(t *testing.T, client *http.Client, path string, form url.Values) string {
	t.Helper()
	resp, err := client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return readBody(t, resp)
}

func (e *testEnv) get(t *testing.T, client *http.Client, path string) string {
	t.Helper()
	resp, err := client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return readBody(t, resp)
}

func (e *testEnv) signUp(t *testing.T, client *http.Client, email, password string) string {
	t.Helper()
	return e.post(t, client, "/auth/signup", url.Values{
		"username":         {"kim"},
		"email":            {email},
		"password":         {password},
		"confirm_password": {password},
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// sessionToken decodes the session token from the browser's cookie session.
func (e *testEnv) sessionToken(t *testing.T, client *http.Client) string {
	t.Helper()
	u, _ := url.Parse(e.server.URL)
	req := httptest.NewRequest(http.MethodGet, e.server.URL+"/", nil)
	for _, c := range client.Jar.Cookies(u) {
		req.AddCookie(c)
	}
	s, err := e.handler.store.Get(req, cookieName)
	if err != nil {
		t.Fatalf("decode cookie session: %v", err)
	}
	token, _ := s.Values[keyToken].(string)
	return token
}

// cookiesSignedWith builds a cookie session holding token, signed with secret.
func cookiesSignedWith(t *testing.T, secret, token string) []*http.Cookie {
	t.Helper()
	store := sessions.NewCookieStore([]byte(secret))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := store.New(req, cookieName)
	if err != nil {
		t.Fatalf("new cookie session: %v", err)
	}
	s.Values[keyToken] = token
	rec := httptest.NewRecorder()
	if err := s.Save(req, rec); err != nil {
		t.Fatalf("save cookie session: %v", err)
	}
	return rec.Result().Cookies()
}

func (e *testEnv) expireClients() {
	e.registry.mu.Lock()
	e.registry.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	e.registry.mu.Unlock()
	_ = e.registry.Sweep(context.Background())
	e.registry.mu.Lock()
	e.registry.now = time.Now
	e.registry.mu.Unlock()
}

var toggleAction = regexp.MustCompile(`/todos/([0-9a-f-]+)/toggle`)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	body := env.get(t, env.client, "/health")
	if strings.TrimSpace(body) != "OK" {
		t.Fatalf("unexpected health body %q", body)
	}
}

func TestSignedOutClientSeesSignIn(t *testing.T) {
	env := newTestEnv(t)
	body := env.get(t, env.client, "/")
	if !strings.Contains(body, "<h1>Sign In</h1>") {
		t.Fatalf("expected sign in form, got %s", body)
	}
	if env.registry.Len() != 0 {
		t.Fatalf("a plain visit must not create a client, got %d", env.registry.Len())
	}
	body = env.post(t, env.client, "/auth/mode", nil)
	if !strings.Contains(body, "<h1>Sign Up</h1>") {
		t.Fatalf("expected sign up form, got %s", body)
	}
	if env.registry.Len() != 1 {
		t.Fatalf("expected one client, got %d", env.registry.Len())
	}
}

func TestSignUpAddToggleAndFilter(t *testing.T) {
	env := newTestEnv(t)

	body := env.signUp(t, env.client, "kim@example.com", "secret1")
	if !strings.Contains(body, "<h1>Todo List</h1>") {
		t.Fatalf("expected todo list after sign up, got %s", body)
	}
	if env.sessionToken(t, env.client) == "" {
		t.Fatal("expected session cookie after sign up")
	}

	body = env.post(t, env.client, "/todos", url.Values{"todo": {"Buy milk"}})
	if !strings.Contains(body, "Buy milk") {
		t.Fatalf("expected new todo, got %s", body)
	}
	match := toggleAction.FindStringSubmatch(body)
	if match == nil {
		t.Fatalf("no toggle action in %s", body)
	}

	body = env.post(t, env.client, "/todos/"+match[1]+"/toggle", nil)
	if !strings.Contains(body, `class="done"`) {
		t.Fatalf("expected completed todo, got %s", body)
	}

	body = env.post(t, env.client, "/filter", url.Values{"filter": {"ongoing"}})
	if strings.Contains(body, "Buy milk") {
		t.Fatalf("completed todo must be hidden under ongoing, got %s", body)
	}

	body = env.post(t, env.client, "/filter", url.Values{"filter": {"completed"}})
	if !strings.Contains(body, "Buy milk") {
		t.Fatalf("expected completed todo, got %s", body)
	}

	body = env.post(t, env.client, "/todos/"+match[1]+"/delete", nil)
	if strings.Contains(body, "Buy milk") {
		t.Fatalf("expected deleted todo, got %s", body)
	}
}

func TestSignUpPasswordMismatchShowsAlert(t *testing.T) {
	env := newTestEnv(t)
	body := env.post(t, env.client, "/auth/signup", url.Values{
		"username":         {"kim"},
		"email":            {"kim@example.com"},
		"password":         {"secret1"},
		"confirm_password": {"secret2"},
	})
	if !strings.Contains(body, html.EscapeString(view.MsgPasswordsDontMatch)) {
		t.Fatalf("expected mismatch alert, got %s", body)
	}
	if env.sessionToken(t, env.client) != "" {
		t.Fatal("mismatch must not sign in")
	}
}

func TestStoredSessionRestoresSweptClient(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")
	env.post(t, env.client, "/todos", url.Values{"todo": {"Buy milk"}})

	env.expireClients()
	if env.registry.Len() != 0 {
		t.Fatalf("expected clients to be swept, got %d", env.registry.Len())
	}

	body := env.get(t, env.client, "/")
	if !strings.Contains(body, "<h1>Todo List</h1>") || !strings.Contains(body, "Buy milk") {
		t.Fatalf("expected restored todo list, got %s", body)
	}
}

func TestCookieSessionMustBeSigned(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")
	token := env.sessionToken(t, env.client)
	u, _ := url.Parse(env.server.URL)

	forged := newBrowser(t)
	forged.Jar.SetCookies(u, cookiesSignedWith(t, "other-secret", token))
	body := env.get(t, forged, "/")
	if !strings.Contains(body, "<h1>Sign In</h1>") {
		t.Fatalf("a cookie signed with another key must be ignored, got %s", body)
	}

	signed := newBrowser(t)
	signed.Jar.SetCookies(u, cookiesSignedWith(t, "test", token))
	body = env.get(t, signed, "/")
	if !strings.Contains(body, "<h1>Todo List</h1>") {
		t.Fatalf("expected properly signed session to restore, got %s", body)
	}
}

func TestPasswordResetSignsOutOtherBrowsers(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")
	env.post(t, env.client, "/todos", url.Values{"todo": {"Buy milk"}})

	other := newBrowser(t)
	env.post(t, other, "/auth/reset", url.Values{"email": {"kim@example.com"}})
	mail := env.mailer.last()
	idx := strings.Index(mail, "http://todolist.test/reset/")
	if idx < 0 {
		t.Fatalf("no reset link in %q", mail)
	}
	token := strings.Fields(mail[idx+len("http://todolist.test/reset/"):])[0]
	env.post(t, other, "/reset/"+token, url.Values{"password": {"newsecret"}, "confirm_password": {"newsecret"}})

	body := env.get(t, env.client, "/")
	if !strings.Contains(body, "<h1>Sign In</h1>") {
		t.Fatalf("expected revoked browser to be signed out, got %s", body)
	}
	if env.sessionToken(t, env.client) != "" {
		t.Fatal("expected revoked token to be dropped from the cookie")
	}

	env.post(t, env.client, "/todos", url.Values{"todo": {"Sneaky"}})
	body = env.post(t, env.client, "/auth/signin", url.Values{"email": {"kim@example.com"}, "password": {"newsecret"}})
	if !strings.Contains(body, "Buy milk") || strings.Contains(body, "Sneaky") {
		t.Fatalf("a signed out browser must not add tasks, got %s", body)
	}
}

func TestGoogleCallbackRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t)
	body := env.get(t, env.client, "/auth/google/callback?state=guess&code=abc")
	if !strings.Contains(body, msgGoogleFailed) {
		t.Fatalf("expected failure alert, got %s", body)
	}
}

func TestSignOutClearsSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")
	env.post(t, env.client, "/profile", nil)

	body := env.post(t, env.client, "/signout", nil)
	if !strings.Contains(body, "<h1>Sign In</h1>") {
		t.Fatalf("expected sign in after sign out, got %s", body)
	}
	if env.sessionToken(t, env.client) != "" {
		t.Fatal("expected session cookie to be cleared")
	}

	body = env.post(t, env.client, "/auth/signin", url.Values{"email": {"kim@example.com"}, "password": {"secret1"}})
	if !strings.Contains(body, "<h1>Todo List</h1>") {
		t.Fatalf("expected todo list after sign in, got %s", body)
	}
}

func TestProfileUsernameUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")

	body := env.post(t, env.client, "/profile", nil)
	if !strings.Contains(body, "<h1>Profile</h1>") || !strings.Contains(body, "Username: kim") {
		t.Fatalf("expected profile, got %s", body)
	}
	body = env.post(t, env.client, "/profile/username", url.Values{"username": {"kimberly"}})
	if !strings.Contains(body, "Username: kimberly") || !strings.Contains(body, view.MsgUsernameUpdated) {
		t.Fatalf("expected updated username, got %s", body)
	}
	body = env.post(t, env.client, "/profile/close", nil)
	if !strings.Contains(body, "<h1>Todo List</h1>") {
		t.Fatalf("expected todo list, got %s", body)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, env.client, "kim@example.com", "secret1")
	env.post(t, env.client, "/signout", nil)

	body := env.post(t, env.client, "/auth/reset", url.Values{"email": {"kim@example.com"}})
	if !strings.Contains(body, view.MsgResetSent) {
		t.Fatalf("expected reset alert, got %s", body)
	}
	mail := env.mailer.last()
	idx := strings.Index(mail, "http://todolist.test/reset/")
	if idx < 0 {
		t.Fatalf("no reset link in %q", mail)
	}
	token := strings.Fields(mail[idx+len("http://todolist.test/reset/"):])[0]

	body = env.get(t, env.client, "/reset/"+token)
	if !strings.Contains(body, "Reset Password") {
		t.Fatalf("expected reset form, got %s", body)
	}

	resp, err := env.client.PostForm(env.server.URL+"/reset/"+token, url.Values{"password": {"newsecret"}, "confirm_password": {"other"}})
	if err != nil {
		t.Fatalf("post reset: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on mismatch, got %d", resp.StatusCode)
	}
	readBody(t, resp)

	body = env.post(t, env.client, "/reset/"+token, url.Values{"password": {"newsecret"}, "confirm_password": {"newsecret"}})
	if !strings.Contains(body, "Your password has been updated.") {
		t.Fatalf("expected reset success, got %s", body)
	}

	body = env.post(t, env.client, "/auth/signin", url.Values{"email": {"kim@example.com"}, "password": {"newsecret"}})
	if !strings.Contains(body, "<h1>Todo List</h1>") {
		t.Fatalf("expected sign in with new password, got %s", body)
	}
}

func TestGoogleUnavailableShowsAlert(t *testing.T) {
	env := newTestEnv(t)
	body := env.get(t, env.client, "/auth/google")
	if !strings.Contains(body, "Sign-in with Google is not available.") {
		t.Fatalf("expected unavailable alert, got %s", body)
	}
	if strings.Contains(body, `href="/auth/google"`) {
		t.Fatal("google link must be hidden when not configured")
	}
}

func TestRegistrySweepsIdleClients(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, env.client, "/auth/mode", nil)
	if env.registry.Len() != 1 {
		t.Fatalf("expected one client, got %d", env.registry.Len())
	}

	env.registry.mu.Lock()
	env.registry.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	env.registry.mu.Unlock()

	if err := env.registry.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if env.registry.Len() != 0 {
		t.Fatalf("expected idle client to be swept, got %d", env.registry.Len())
	}

	body := env.get(t, env.client, "/")
	if !strings.Contains(body, "<h1>Sign In</h1>") || env.registry.Len() != 0 {
		t.Fatal("a swept signed-out client must get the plain sign in page")
	}
}
