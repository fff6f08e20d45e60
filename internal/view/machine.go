// Package view is the per-client state machine behind every screen: the
// auth form, the todo list and the profile editor.
package view

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"todolist/internal/model"
	"todolist/internal/service"
	"todolist/internal/session"
)

// Messages shown to the user.
const (
	MsgPasswordsDontMatch = "Passwords don't match."
	MsgSignUpSuccess      = "Sign up successful, please login."
	MsgResetSent          = "Check your email for the password reset link."
	MsgUsernameUpdated    = "Username updated."
)

// DefaultSignUpRedirectDelay is how long the sign-up success message stays
// before the form switches back to sign-in.
const DefaultSignUpRedirectDelay = 3 * time.Second

// Screen is one of the mutually exclusive views.
type Screen int

const (
	ScreenAuth Screen = iota
	ScreenTodoList
	ScreenProfile
)

func (s Screen) String() string {
	switch s {
	case ScreenTodoList:
		return "todos"
	case ScreenProfile:
		return "profile"
	default:
		return "auth"
	}
}

// AuthGateway is the subset of the auth service the machine drives.
type AuthGateway interface {
	SignUp(ctx context.Context, sess *session.Context, email, password, username string) (*model.User, error)
	SignIn(ctx context.Context, sess *session.Context, email, password string) (*model.User, error)
	SignOut(ctx context.Context, sess *session.Context) error
	ResetPassword(ctx context.Context, email string) error
	SignInWithGoogle(ctx context.Context, sess *session.Context, code string) (*model.User, error)
}

// ProfileStore reads and writes profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, uid string, input service.ProfileInput) error
	UpdateUsername(ctx context.Context, uid, username string) error
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task model.Task) (*model.Task, error)
	ListTasks(ctx context.Context, userID string) ([]model.Task, error)
	SetCompleted(ctx context.Context, userID, taskID string, completed bool) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

// Timer is a pending delayed action.
type Timer interface {
	Stop() bool
}

// Options wires a Machine to its collaborators.
type Options struct {
	Session  *session.Context
	Auth     AuthGateway
	Profiles ProfileStore
	Tasks    TaskStore

	SignUpRedirectDelay time.Duration
	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// NewID generates task ids. Defaults to uuid.NewString.
	NewID func() string
	Now   func() time.Time
}

// State is a consistent copy of everything a screen renders.
type State struct {
	Screen      Screen
	User        *model.User
	IsSignUp    bool
	ShowProfile bool

	Email           string
	Password        string
	ConfirmPassword string
	Username        string
	SuccessMessage  string

	TodoInput string
	Todos     []model.Task
	Visible   []model.Task
	Filter    model.Filter

	ProfileUsername string
	NewUsername     string
	ProfileStatus   string
	ProfileFailed   bool
}

// InitialState is what a client shows before any session arrives.
func InitialState() State {
	return State{Screen: ScreenAuth, Filter: model.FilterAll}
}

// Machine holds the UI state of one client. All methods are safe for
// concurrent use; no lock is held while a collaborator is called.
type Machine struct {
	sess     *session.Context
	auth     AuthGateway
	profiles ProfileStore
	tasks    TaskStore

	redirectDelay time.Duration
	afterFunc     func(time.Duration, func()) Timer
	newID         func() string
	now           func() time.Time

	mu    sync.Mutex
	ctx   context.Context
	epoch int

	user        *model.User
	isSignUp    bool
	showProfile bool

	email           string
	password        string
	confirmPassword string
	username        string
	successMessage  string
	redirectTimer   Timer

	todoInput string
	todos     []model.Task
	pending   map[string]bool
	filter    model.Filter
	// changes counts local list edits. While a load is in flight, touched
	// holds the count at the last edit of each task id.
	changes int
	loads   int
	touched map[string]int

	profileUsername string
	newUsername     string
	profileStatus   string
	profileFailed   bool

	alerts      []string
	unsubscribe func()
}

func New(opts Options) *Machine {
	m := &Machine{
		sess:          opts.Session,
		auth:          opts.Auth,
		profiles:      opts.Profiles,
		tasks:         opts.Tasks,
		redirectDelay: opts.SignUpRedirectDelay,
		afterFunc:     opts.AfterFunc,
		newID:         opts.NewID,
		now:           opts.Now,
		ctx:           context.Background(),
		pending:       make(map[string]bool),
		touched:       make(map[string]int),
		filter:        model.FilterAll,
	}
	if m.sess == nil {
		m.sess = session.New()
	}
	if m.redirectDelay <= 0 {
		m.redirectDelay = DefaultSignUpRedirectDelay
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Session is the session context the machine mirrors.
func (m *Machine) Session() *session.Context {
	return m.sess
}

// Start subscribes to the session. ctx bounds the loads triggered by
// session changes. Calling Start twice has no effect.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.mu.Unlock()
		return
	}
	m.ctx = ctx
	m.unsubscribe = func() {}
	m.mu.Unlock()

	unsubscribe := m.sess.Subscribe(m.onSessionChange)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
}

// Close unsubscribes from the session and cancels the pending redirect.
func (m *Machine) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	if m.redirectTimer != nil {
		m.redirectTimer.Stop()
		m.redirectTimer = nil
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// onSessionChange is the only place the current user is written.
func (m *Machine) onSessionChange(user *model.User) {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	since := m.changes
	if user != nil {
		m.loads++
	}
	m.user = user
	m.password = ""
	m.confirmPassword = ""
	if user == nil {
		m.showProfile = false
		m.todos = nil
		m.pending = make(map[string]bool)
		m.todoInput = ""
		m.profileUsername = ""
		m.newUsername = ""
		m.profileStatus = ""
		m.profileFailed = false
	}
	ctx := m.ctx
	m.mu.Unlock()

	if user == nil {
		return
	}
	m.load(ctx, epoch, since, *user)
}

// load replaces the list with the stored tasks. Tasks edited locally after
// the load started keep their local version, and entries whose create call
// is still in flight are kept.
func (m *Machine) load(ctx context.Context, epoch, since int, user model.User) {
	var (
		stored   []model.Task
		loadErr  error
		username string
	)
	if m.tasks != nil {
		stored, loadErr = m.tasks.ListTasks(ctx, user.UID)
		if loadErr != nil {
			log.Printf("[warn] load tasks uid=%s: %v", user.UID, loadErr)
		}
	}
	if m.profiles != nil {
		profile, err := m.profiles.GetProfile(ctx, user.UID)
		switch {
		case err == nil:
			username = profile.Username
		case errors.Is(err, service.ErrProfileNotFound):
		default:
			log.Printf("[warn] load profile uid=%s: %v", user.UID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finishLoad()
	if m.epoch != epoch {
		return
	}
	m.profileUsername = username
	if loadErr != nil {
		return
	}
	local := make(map[string]model.Task, len(m.todos))
	for _, t := range m.todos {
		local[t.ID] = t
	}
	known := make(map[string]bool, len(stored))
	merged := make([]model.Task, 0, len(stored)+len(m.todos))
	for _, t := range stored {
		known[t.ID] = true
		if m.touched[t.ID] > since {
			if lt, ok := local[t.ID]; ok {
				merged = append(merged, lt)
			}
			continue
		}
		merged = append(merged, t)
	}
	for _, t := range m.todos {
		if !known[t.ID] && (m.pending[t.ID] || m.touched[t.ID] > since) {
			merged = append(merged, t)
		}
	}
	m.todos = merged
}

// finishLoad forgets edit marks once no load is in flight. Callers hold m.mu.
func (m *Machine) finishLoad() {
	m.loads--
	if m.loads == 0 {
		clear(m.touched)
	}
}

// touch records a local edit of id. Callers hold m.mu.
func (m *Machine) touch(id string) {
	m.changes++
	if m.loads > 0 {
		m.touched[id] = m.changes
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var user *model.User
	if m.user != nil {
		u := *m.user
		user = &u
	}
	screen := ScreenAuth
	if user != nil {
		screen = ScreenTodoList
		if m.showProfile {
			screen = ScreenProfile
		}
	}
	return State{
		Screen:          screen,
		User:            user,
		IsSignUp:        m.isSignUp,
		ShowProfile:     m.showProfile,
		Email:           m.email,
		Password:        m.password,
		ConfirmPassword: m.confirmPassword,
		Username:        m.username,
		SuccessMessage:  m.successMessage,
		TodoInput:       m.todoInput,
		Todos:           cloneTasks(m.todos),
		Visible:         FilterTasks(m.todos, m.filter),
		Filter:          m.filter,
		ProfileUsername: m.profileUsername,
		NewUsername:     m.newUsername,
		ProfileStatus:   m.profileStatus,
		ProfileFailed:   m.profileFailed,
	}
}

// TakeAlerts drains the blocking notifications raised since the last call.
func (m *Machine) TakeAlerts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	alerts := m.alerts
	m.alerts = nil
	return alerts
}

// Alert queues a blocking notification for the client.
func (m *Machine) Alert(msg string) {
	m.mu.Lock()
	m.alerts = append(m.alerts, msg)
	m.mu.Unlock()
}

func (m *Machine) currentUser() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Auth form.

func (m *Machine) SetEmail(v string) {
	m.mu.Lock()
	m.email = v
	m.mu.Unlock()
}

func (m *Machine) SetPassword(v string) {
	m.mu.Lock()
	m.password = v
	m.mu.Unlock()
}

func (m *Machine) SetConfirmPassword(v string) {
	m.mu.Lock()
	m.confirmPassword = v
	m.mu.Unlock()
}

func (m *Machine) SetUsername(v string) {
	m.mu.Lock()
	m.username = v
	m.mu.Unlock()
}

// ToggleSignUp switches the auth form between sign-in and sign-up.
func (m *Machine) ToggleSignUp() {
	m.mu.Lock()
	m.isSignUp = !m.isSignUp
	m.mu.Unlock()
}

func (m *Machine) SubmitSignIn(ctx context.Context) {
	m.mu.Lock()
	email, password := m.email, m.password
	m.mu.Unlock()

	if _, err := m.auth.SignIn(ctx, m.sess, email, password); err != nil {
		m.Alert(err.Error())
	}
}

// SubmitSignUp creates the account and its profile. Mismatched passwords
// never reach the gateway.
func (m *Machine) SubmitSignUp(ctx context.Context) {
	m.mu.Lock()
	email, password, confirm, username := m.email, m.password, m.confirmPassword, m.username
	m.mu.Unlock()

	if password != confirm {
		m.Alert(MsgPasswordsDontMatch)
		return
	}

	user, err := m.auth.SignUp(ctx, m.sess, email, password, username)
	if err != nil {
		m.Alert(err.Error())
		return
	}
	if m.profiles != nil {
		input := service.ProfileInput{Username: username, Email: strings.TrimSpace(email)}
		if err := m.profiles.CreateProfile(ctx, user.UID, input); err != nil {
			log.Printf("[warn] create profile uid=%s: %v", user.UID, err)
			m.Alert(err.Error())
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil && m.user.UID == user.UID {
		m.profileUsername = strings.TrimSpace(username)
	}
	m.successMessage = MsgSignUpSuccess
	if m.redirectTimer != nil {
		m.redirectTimer.Stop()
	}
	m.redirectTimer = m.afterFunc(m.redirectDelay, m.finishSignUpRedirect)
}

func (m *Machine) finishSignUpRedirect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isSignUp = false
	m.successMessage = ""
	m.redirectTimer = nil
}

func (m *Machine) SubmitReset(ctx context.Context) {
	m.mu.Lock()
	email := m.email
	m.mu.Unlock()

	if err := m.auth.ResetPassword(ctx, email); err != nil {
		m.Alert(err.Error())
		return
	}
	m.Alert(MsgResetSent)
}

// SignInWithGoogle completes federated sign-in with an authorization code.
func (m *Machine) SignInWithGoogle(ctx context.Context, code string) {
	if _, err := m.auth.SignInWithGoogle(ctx, m.sess, code); err != nil {
		m.Alert(err.Error())
	}
}

// SignOut asks the gateway to end the session. The screen changes when the
// session notification arrives, not here.
func (m *Machine) SignOut(ctx context.Context) {
	if err := m.auth.SignOut(ctx, m.sess); err != nil {
		m.Alert(err.Error())
	}
}

// Todo list.

func (m *Machine) SetTodoInput(v string) {
	m.mu.Lock()
	m.todoInput = v
	m.mu.Unlock()
}

func (m *Machine) SetFilter(f model.Filter) {
	m.mu.Lock()
	m.filter = model.ParseFilter(string(f))
	m.mu.Unlock()
}

// AddTodo appends the input as a new task, clears the input and stores the
// task. The entry is removed again if the store rejects it.
func (m *Machine) AddTodo(ctx context.Context) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	name := model.ClampTodoName(m.todoInput)
	if name == "" {
		m.mu.Unlock()
		return
	}
	task := model.Task{
		ID:        m.newID(),
		UserID:    m.user.UID,
		TodoName:  name,
		Completed: false,
		CreatedAt: m.now(),
	}
	m.todos = AppendTask(m.todos, task)
	m.todoInput = ""
	m.pending[task.ID] = true
	m.touch(task.ID)
	m.mu.Unlock()

	if m.tasks == nil {
		return
	}
	created, err := m.tasks.CreateTask(ctx, task)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, task.ID)
	m.touch(task.ID)
	if err != nil {
		log.Printf("[warn] create task id=%s uid=%s: %v", task.ID, task.UserID, err)
		m.todos, _, _, _ = DeleteByID(m.todos, task.ID)
		return
	}
	for i := range m.todos {
		if m.todos[i].ID == created.ID {
			m.todos[i].CreatedAt = created.CreatedAt
			m.todos[i].UpdatedAt = created.UpdatedAt
		}
	}
	log.Printf("[info] task created id=%s uid=%s", created.ID, created.UserID)
}

// Toggle flips the completion of one task and stores it.
func (m *Machine) Toggle(ctx context.Context, id string) bool {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return false
	}
	todos, ok := ToggleByID(m.todos, id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.todos = todos
	m.touch(id)
	completed := completedOf(todos, id)
	uid := m.user.UID
	m.mu.Unlock()

	if m.tasks == nil {
		return true
	}
	if err := m.tasks.SetCompleted(ctx, uid, id, completed); err != nil {
		log.Printf("[warn] toggle task id=%s uid=%s: %v", id, uid, err)
		m.mu.Lock()
		if m.user != nil && m.user.UID == uid && completedOf(m.todos, id) == completed {
			m.todos, _ = ToggleByID(m.todos, id)
			m.touch(id)
		}
		m.mu.Unlock()
		return false
	}
	return true
}

// Delete removes one task and deletes it from the store.
func (m *Machine) Delete(ctx context.Context, id string) bool {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return false
	}
	todos, removed, index, ok := DeleteByID(m.todos, id)
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.todos = todos
	m.touch(id)
	uid := m.user.UID
	m.mu.Unlock()

	if m.tasks == nil {
		return true
	}
	err := m.tasks.DeleteTask(ctx, uid, id)
	if err != nil && !errors.Is(err, service.ErrTaskNotFound) {
		log.Printf("[warn] delete task id=%s uid=%s: %v", id, uid, err)
		m.mu.Lock()
		if m.user != nil && m.user.UID == uid {
			m.todos = InsertAt(m.todos, index, removed)
			m.touch(id)
		}
		m.mu.Unlock()
		return false
	}
	return true
}

// ToggleByName flips every task named name and returns how many were stored.
func (m *Machine) ToggleByName(ctx context.Context, name string) int {
	n := 0
	for _, id := range m.idsNamed(name) {
		if m.Toggle(ctx, id) {
			n++
		}
	}
	return n
}

// DeleteByName removes every task named name and returns how many were
// deleted.
func (m *Machine) DeleteByName(ctx context.Context, name string) int {
	n := 0
	for _, id := range m.idsNamed(name) {
		if m.Delete(ctx, id) {
			n++
		}
	}
	return n
}

func (m *Machine) idsNamed(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, t := range m.todos {
		if t.TodoName == name {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func completedOf(tasks []model.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return t.Completed
		}
	}
	return false
}

// Profile.

// ViewProfile moves from the todo list to the profile screen.
func (m *Machine) ViewProfile() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return
	}
	m.showProfile = true
	m.profileStatus = ""
	m.profileFailed = false
}

// GoToTodoList moves from the profile screen back to the todo list.
func (m *Machine) GoToTodoList() {
	m.mu.Lock()
	m.showProfile = false
	m.mu.Unlock()
}

func (m *Machine) SetNewUsername(v string) {
	m.mu.Lock()
	m.newUsername = v
	m.mu.Unlock()
}

// SubmitUsername stores the new username and reports the outcome on the
// profile screen.
func (m *Machine) SubmitUsername(ctx context.Context) {
	m.mu.Lock()
	if m.user == nil {
		m.mu.Unlock()
		return
	}
	uid, name := m.user.UID, m.newUsername
	m.mu.Unlock()

	var err error
	if m.profiles != nil {
		err = m.profiles.UpdateUsername(ctx, uid, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil || m.user.UID != uid {
		return
	}
	if err != nil {
		log.Printf("[warn] update username uid=%s: %v", uid, err)
		m.profileStatus = "Could not update username: " + err.Error()
		m.profileFailed = true
		return
	}
	m.profileUsername = strings.TrimSpace(name)
	m.profileStatus = MsgUsernameUpdated
	m.profileFailed = false
}
