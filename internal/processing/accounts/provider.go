package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/IgorGrieder/short-url/pkg/httpclient"
	"golang.org/x/oauth2"
)

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Scopes       []string
}

// OAuthProvider talks to an authorization-code OAuth2 provider whose
// user-info endpoint returns a Discord-shaped profile (id, email, verified).
type OAuthProvider struct {
	config     *oauth2.Config
	profileURL string
	http       *httpclient.Client
}

func NewOAuthProvider(cfg OAuthProviderConfig, client *httpclient.Client) *OAuthProvider {
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: cfg.ProfileURL,
		http:       client,
	}
}

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange fails when the token response carries no access token.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http.HTTPClient())

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("token response without access_token")
	}
	return token.AccessToken, nil
}

func (p *OAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := p.http.Get(ctx, p.profileURL, nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
		"Accept":        "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("call profile endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}

var _ Provider = (*OAuthProvider)(nil)

