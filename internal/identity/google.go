package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Federation is a third-party sign-in provider using the OAuth2 code flow.
type Federation interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*FederatedIdentity, error)
}

// GoogleFederation signs users in with their Google account.
type GoogleFederation struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleFederation(clientID, clientSecret, redirectURL string) *GoogleFederation {
	return &GoogleFederation{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleFederation) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type googleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Exchange trades the authorization code for a token and reads the user's
// identity from the userinfo endpoint.
func (g *GoogleFederation) Exchange(ctx context.Context, code string) (*FederatedIdentity, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, authError(CodeNetworkRequestFailed, "Google sign-in failed. Please try again.", fmt.Errorf("exchange code: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, internalError("build userinfo request", err)
	}
	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, authError(CodeNetworkRequestFailed, "Google sign-in failed. Please try again.", fmt.Errorf("userinfo: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, authError(CodeNetworkRequestFailed, "Google sign-in failed. Please try again.", fmt.Errorf("userinfo: status %d", resp.StatusCode))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, internalError("decode userinfo", err)
	}
	if !info.EmailVerified {
		return nil, authError(CodeInvalidCredential, "Your Google account email is not verified.", nil)
	}

	return &FederatedIdentity{Provider: ProviderGoogle, Subject: info.Subject, Email: info.Email}, nil
}
