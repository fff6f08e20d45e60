package service

import (
	"context"
	"log"
	"strings"

	"todolist/internal/identity"
	"todolist/internal/model"
	"todolist/internal/session"
)

// IdentityProvider is the identity backend the auth service delegates to.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignInFederated(ctx context.Context, fed identity.FederatedIdentity) (*identity.Session, bool, error)
	Restore(ctx context.Context, token string) (*model.User, error)
	SignOut(ctx context.Context, token string) error
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// AuthService is the gateway between clients and the identity provider.
// Successful sign-ins publish into the client's session context, which is
// the only way a client learns who is signed in.
type AuthService struct {
	provider   IdentityProvider
	federation identity.Federation
	profiles   *ProfileService
}

// NewAuthService builds the gateway. federation may be nil when federated
// sign-in is not configured.
func NewAuthService(provider IdentityProvider, federation identity.Federation, profiles *ProfileService) *AuthService {
	return &AuthService{provider: provider, federation: federation, profiles: profiles}
}

func (s *AuthService) SignUp(ctx context.Context, sess *session.Context, email, password, username string) (*model.User, error) {
	created, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	log.Printf("[info] sign up uid=%s username=%q", created.User.UID, username)
	sess.Publish(created.User, created.Token)
	return created.User, nil
}

func (s *AuthService) SignIn(ctx context.Context, sess *session.Context, email, password string) (*model.User, error) {
	signedIn, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	log.Printf("[info] sign in uid=%s", signedIn.User.UID)
	sess.Publish(signedIn.User, signedIn.Token)
	return signedIn.User, nil
}

// SignOut revokes the client's token; the session change that follows is
// what moves the client back to the auth form.
func (s *AuthService) SignOut(ctx context.Context, sess *session.Context) error {
	if err := s.provider.SignOut(ctx, sess.Token()); err != nil {
		return err
	}
	sess.Publish(nil, "")
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email string) error {
	return s.provider.SendPasswordReset(ctx, email)
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return s.provider.ConfirmPasswordReset(ctx, token, newPassword)
}

// Restore signs the client back in from a token issued earlier, as happens
// when a page is reloaded with a cached session.
func (s *AuthService) Restore(ctx context.Context, sess *session.Context, token string) (*model.User, error) {
	user, err := s.provider.Restore(ctx, token)
	if err != nil {
		return nil, err
	}
	sess.Publish(user, token)
	return user, nil
}

// Verify checks that the client's token still names a live session. A
// revoked, expired or orphaned session is ended, which moves the client back
// to the auth form. Store failures leave the session alone.
func (s *AuthService) Verify(ctx context.Context, sess *session.Context) error {
	token := sess.Token()
	if token == "" {
		return nil
	}
	_, err := s.provider.Restore(ctx, token)
	if err == nil {
		return nil
	}
	if identity.IsCode(err, identity.CodeSessionExpired) || identity.IsCode(err, identity.CodeUserNotFound) {
		if sess.Expire(token) {
			log.Printf("[info] session ended: %v", err)
		}
	}
	return err
}

// FederationEnabled reports whether SignInWithGoogle can be used.
func (s *AuthService) FederationEnabled() bool {
	return s.federation != nil
}

// GoogleAuthURL is where the client is sent to start federated sign-in.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.federation == nil {
		return "", federationUnavailable()
	}
	return s.federation.AuthCodeURL(state), nil
}

// SignInWithGoogle completes federated sign-in with the authorization code
// Google redirected back with. First-time users get a profile.
func (s *AuthService) SignInWithGoogle(ctx context.Context, sess *session.Context, code string) (*model.User, error) {
	if s.federation == nil {
		return nil, federationUnavailable()
	}
	fed, err := s.federation.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	signedIn, created, err := s.provider.SignInFederated(ctx, *fed)
	if err != nil {
		return nil, err
	}
	if s.profiles != nil {
		input := ProfileInput{Username: usernameFromEmail(signedIn.User.Email), Email: signedIn.User.Email}
		if err := s.profiles.EnsureProfile(ctx, signedIn.User.UID, input); err != nil {
			log.Printf("[warn] ensure profile uid=%s: %v", signedIn.User.UID, err)
		}
	}
	log.Printf("[info] federated sign in uid=%s provider=%s created=%t", signedIn.User.UID, fed.Provider, created)
	sess.Publish(signedIn.User, signedIn.Token)
	return signedIn.User, nil
}

func federationUnavailable() error {
	return &identity.AuthError{
		Code:    identity.CodeFederationUnavailable,
		Message: "Sign-in with Google is not available.",
	}
}

func usernameFromEmail(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
