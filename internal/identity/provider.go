package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"todolist/internal/model"
	"todolist/internal/repository"
)

const (
	minPasswordLength = 6
	resetTTL          = time.Hour

	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Session is the result of a successful authentication.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// FederatedIdentity is what a federation reports about a signed-in user.
type FederatedIdentity struct {
	Provider string
	Subject  string
	Email    string
}

// Local is an identity provider backed by the application's own database.
type Local struct {
	accounts   *repository.AccountRepository
	sessions   *repository.SessionRepository
	resets     *repository.ResetRepository
	tokens     *TokenIssuer
	mailer     Mailer
	resetURL   string
	bcryptCost int
	now        func() time.Time
}

// Options configures a Local provider.
type Options struct {
	Secret     string
	SessionTTL time.Duration
	Mailer     Mailer
	// ResetURL is the prefix the reset token is appended to in mails.
	ResetURL   string
	BcryptCost int
}

func NewLocal(db *gorm.DB, opts Options) *Local {
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{}
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	return &Local{
		accounts:   repository.NewAccountRepository(db),
		sessions:   repository.NewSessionRepository(db),
		resets:     repository.NewResetRepository(db),
		tokens:     NewTokenIssuer(opts.Secret, opts.SessionTTL),
		mailer:     opts.Mailer,
		resetURL:   opts.ResetURL,
		bcryptCost: opts.BcryptCost,
		now:        time.Now,
	}
}

// SignUp creates a password account and signs it in.
func (p *Local) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email, err := validEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validPassword(password); err != nil {
		return nil, err
	}

	if _, err := p.accounts.FindByEmail(ctx, email); err == nil {
		return nil, authError(CodeEmailAlreadyInUse, "The email address is already in use by another account.", nil)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internalError("find account", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, internalError("hash password", err)
	}
	account := &model.Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, authError(CodeEmailAlreadyInUse, "The email address is already in use by another account.", err)
		}
		return nil, internalError("create account", err)
	}
	log.Printf("[info] account created uid=%s provider=%s", account.UID, account.Provider)

	return p.startSession(ctx, account)
}

// SignIn checks the password of an existing account.
func (p *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := validEmail(email)
	if err != nil {
		return nil, err
	}

	account, err := p.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, invalidCredential()
	default:
		return nil, internalError("find account", err)
	}

	if account.PasswordHash == "" {
		return nil, invalidCredential()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, invalidCredential()
	}

	return p.startSession(ctx, account)
}

// SignInFederated signs in the account linked to the federated identity,
// linking an existing account with the same email or creating a new one.
// created reports whether a new account was made.
func (p *Local) SignInFederated(ctx context.Context, fed FederatedIdentity) (*Session, bool, error) {
	if fed.Subject == "" {
		return nil, false, authError(CodeInvalidCredential, "The federated identity is missing a subject.", nil)
	}

	account, err := p.accounts.FindByProvider(ctx, fed.Provider, fed.Subject)
	if err == nil {
		sess, err := p.startSession(ctx, account)
		return sess, false, err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, internalError("find federated account", err)
	}

	email, err := validEmail(fed.Email)
	if err != nil {
		return nil, false, err
	}

	account, err = p.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := p.accounts.LinkProvider(ctx, account.UID, fed.Provider, fed.Subject); err != nil {
			return nil, false, internalError("link provider", err)
		}
		log.Printf("[info] account linked uid=%s provider=%s", account.UID, fed.Provider)
		sess, err := p.startSession(ctx, account)
		return sess, false, err
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, false, internalError("find account", err)
	}

	account = &model.Account{
		UID:             uuid.NewString(),
		Email:           email,
		Provider:        fed.Provider,
		ProviderSubject: fed.Subject,
	}
	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, false, internalError("create account", err)
	}
	log.Printf("[info] account created uid=%s provider=%s", account.UID, account.Provider)

	sess, err := p.startSession(ctx, account)
	return sess, true, err
}

// Restore resolves a previously issued token back into its user.
func (p *Local) Restore(ctx context.Context, token string) (*model.User, error) {
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return nil, authError(CodeSessionExpired, "Your session has expired. Please sign in again.", err)
	}

	record, err := p.sessions.FindByID(ctx, claims.ID)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, authError(CodeSessionExpired, "Your session has expired. Please sign in again.", err)
	default:
		return nil, internalError("find session", err)
	}
	if !record.Active(p.now()) || record.UID != claims.Subject {
		return nil, authError(CodeSessionExpired, "Your session has expired. Please sign in again.", nil)
	}

	account, err := p.accounts.FindByUID(ctx, record.UID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authError(CodeUserNotFound, "There is no user record corresponding to this identifier.", err)
		}
		return nil, internalError("find account", err)
	}
	return account.User(), nil
}

// SignOut revokes the session behind token. Unknown or malformed tokens are
// ignored since there is nothing left to revoke.
func (p *Local) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := p.tokens.Parse(token)
	if claims == nil {
		log.Printf("[warn] sign out with unparsable token: %v", err)
		return nil
	}
	if err := p.sessions.Revoke(ctx, claims.ID, p.now()); err != nil {
		return internalError("revoke session", err)
	}
	log.Printf("[info] session revoked uid=%s", claims.Subject)
	return nil
}

// SendPasswordReset mails a single-use reset link to the account's address.
func (p *Local) SendPasswordReset(ctx context.Context, email string) error {
	email, err := validEmail(email)
	if err != nil {
		return err
	}

	account, err := p.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return authError(CodeUserNotFound, "There is no user record corresponding to this email.", err)
	default:
		return internalError("find account", err)
	}

	token, err := randomToken()
	if err != nil {
		return internalError("generate reset token", err)
	}
	reset := &model.PasswordReset{
		Token:     token,
		UID:       account.UID,
		ExpiresAt: p.now().Add(resetTTL),
	}
	if err := p.resets.Create(ctx, reset); err != nil {
		return internalError("store reset token", err)
	}

	body := fmt.Sprintf("Follow this link to reset your password:\n\n%s%s\n\nIf you didn't ask to reset your password, you can ignore this email.\n",
		p.resetURL, token)
	if err := p.mailer.Send(ctx, account.Email, "Reset your password", body); err != nil {
		return authError(CodeNetworkRequestFailed, "Could not send the password reset email.", err)
	}
	log.Printf("[info] password reset sent uid=%s", account.UID)
	return nil
}

// ConfirmPasswordReset consumes a reset token and sets a new password. Every
// session of the account is signed out.
func (p *Local) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := validPassword(newPassword); err != nil {
		return err
	}

	reset, err := p.resets.Find(ctx, token)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return invalidResetToken(err)
	default:
		return internalError("find reset token", err)
	}
	now := p.now()
	if reset.UsedAt != nil || now.After(reset.ExpiresAt) {
		return invalidResetToken(nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.bcryptCost)
	if err != nil {
		return internalError("hash password", err)
	}
	if err := p.resets.MarkUsed(ctx, token, now); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidResetToken(err)
		}
		return internalError("use reset token", err)
	}
	if err := p.accounts.UpdatePassword(ctx, reset.UID, string(hash)); err != nil {
		return internalError("update password", err)
	}
	if err := p.sessions.RevokeAllForUser(ctx, reset.UID, now); err != nil {
		return internalError("revoke sessions", err)
	}
	log.Printf("[info] password reset uid=%s", reset.UID)
	return nil
}

// PurgeExpired drops expired or revoked sessions and used or expired reset tokens.
func (p *Local) PurgeExpired(ctx context.Context) (sessions, resets int64, err error) {
	now := p.now()
	if sessions, err = p.sessions.DeleteExpired(ctx, now); err != nil {
		return 0, 0, err
	}
	if resets, err = p.resets.DeleteExpired(ctx, now); err != nil {
		return sessions, 0, err
	}
	return sessions, resets, nil
}

func (p *Local) startSession(ctx context.Context, account *model.Account) (*Session, error) {
	sessionID := uuid.NewString()
	token, expires, err := p.tokens.Issue(account.UID, sessionID)
	if err != nil {
		return nil, internalError("issue token", err)
	}
	record := &model.SessionRecord{ID: sessionID, UID: account.UID, ExpiresAt: expires}
	if err := p.sessions.Create(ctx, record); err != nil {
		return nil, internalError("store session", err)
	}
	return &Session{User: account.User(), Token: token, ExpiresAt: expires}, nil
}

func validEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", authError(CodeInvalidEmail, "The email address is badly formatted.", err)
	}
	return email, nil
}

func validPassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return authError(CodeWeakPassword, fmt.Sprintf("Password should be at least %d characters.", minPasswordLength), nil)
	}
	return nil
}

func invalidCredential() *AuthError {
	return authError(CodeInvalidCredential, "The email or password is incorrect.", nil)
}

func invalidResetToken(cause error) *AuthError {
	return authError(CodeInvalidResetToken, "The password reset link is invalid or has expired.", cause)
}

func internalError(op string, err error) *AuthError {
	return authError(CodeInternal, "Something went wrong. Please try again.", fmt.Errorf("%s: %w", op, err))
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (p *Local) setClock(now func() time.Time) {
	p.now = now
	p.tokens.now = now
}
