package service

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"todolist/internal/identity"
	"todolist/internal/model"
	"todolist/internal/repository"
	"todolist/internal/session"
	"todolist/internal/testsupport"
)

type fakeFederation struct {
	identity *identity.FederatedIdentity
	err      error
}

func (f *fakeFederation) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeFederation) Exchange(context.Context, string) (*identity.FederatedIdentity, error) {
	return f.identity, f.err
}

func newAuthService(t *testing.T, fed identity.Federation) (*AuthService, *ProfileService) {
	t.Helper()
	db := testsupport.OpenDB(t)
	provider := identity.NewLocal(db, identity.Options{
		Secret:     "test",
		SessionTTL: time.Hour,
		Mailer:     identity.LogMailer{},
		BcryptCost: bcrypt.MinCost,
	})
	profiles := NewProfileService(repository.NewProfileRepository(db))
	return NewAuthService(provider, fed, profiles), profiles
}

func TestAuthServicePublishesSessionChanges(t *testing.T) {
	svc, _ := newAuthService(t, nil)
	ctx := context.Background()
	sess := session.New()

	var seen []*model.User
	unsubscribe := sess.Subscribe(func(u *model.User) { seen = append(seen, u) })
	defer unsubscribe()

	user, err := svc.SignUp(ctx, sess, "kim@example.com", "secret1", "kim")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if sess.Token() == "" {
		t.Fatal("expected token after sign up")
	}
	token := sess.Token()

	if err := svc.SignOut(ctx, sess); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if len(seen) != 3 || seen[0] != nil || seen[1] == nil || seen[1].UID != user.UID || seen[2] != nil {
		t.Fatalf("unexpected notifications: %+v", seen)
	}

	other := session.New()
	if _, err := svc.Restore(ctx, other, token); !identity.IsCode(err, identity.CodeSessionExpired) {
		t.Fatalf("expected signed-out token to be rejected, got %v", err)
	}
	if other.Current() != nil {
		t.Fatal("failed restore must not publish a user")
	}
}

func TestVerifyEndsRevokedSession(t *testing.T) {
	svc, _ := newAuthService(t, nil)
	ctx := context.Background()
	browser, phone := session.New(), session.New()

	if _, err := svc.SignUp(ctx, browser, "kim@example.com", "secret1", "kim"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, err := svc.SignIn(ctx, phone, "kim@example.com", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := svc.Verify(ctx, browser); err != nil {
		t.Fatalf("verify live session: %v", err)
	}

	if err := svc.provider.SignOut(ctx, browser.Token()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.Verify(ctx, browser); !identity.IsCode(err, identity.CodeSessionExpired) {
		t.Fatalf("expected session-expired, got %v", err)
	}
	if browser.Current() != nil || browser.Token() != "" {
		t.Fatal("expected revoked session to be signed out")
	}
	if err := svc.Verify(ctx, phone); err != nil || phone.Current() == nil {
		t.Fatalf("other session must stay signed in: %v", err)
	}
	if err := svc.Verify(ctx, browser); err != nil {
		t.Fatalf("verify signed-out session: %v", err)
	}
}

func TestAuthServiceSignInFailureDoesNotPublish(t *testing.T) {
	svc, _ := newAuthService(t, nil)
	sess := session.New()

	if _, err := svc.SignIn(context.Background(), sess, "nobody@example.com", "secret1"); !identity.IsCode(err, identity.CodeInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if sess.Current() != nil {
		t.Fatal("expected no user after failed sign in")
	}
}

func TestSignInWithGoogleCreatesProfile(t *testing.T) {
	fed := &fakeFederation{identity: &identity.FederatedIdentity{
		Provider: identity.ProviderGoogle,
		Subject:  "g-1",
		Email:    "lee@example.com",
	}}
	svc, profiles := newAuthService(t, fed)
	sess := session.New()

	user, err := svc.SignInWithGoogle(context.Background(), sess, "code")
	if err != nil {
		t.Fatalf("google sign in: %v", err)
	}
	if sess.Current() == nil || sess.Current().UID != user.UID {
		t.Fatalf("expected session for %s, got %+v", user.UID, sess.Current())
	}
	profile, err := profiles.GetProfile(context.Background(), user.UID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Username != "lee" || profile.Email != "lee@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestGoogleUnavailableWithoutFederation(t *testing.T) {
	svc, _ := newAuthService(t, nil)

	if svc.FederationEnabled() {
		t.Fatal("expected federation to be disabled")
	}
	if _, err := svc.GoogleAuthURL("state"); !identity.IsCode(err, identity.CodeFederationUnavailable) {
		t.Fatalf("expected federation-unavailable, got %v", err)
	}
	if _, err := svc.SignInWithGoogle(context.Background(), session.New(), "code"); !identity.IsCode(err, identity.CodeFederationUnavailable) {
		t.Fatalf("expected federation-unavailable, got %v", err)
	}
}
