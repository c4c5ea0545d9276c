package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity is a verified identity returned by an OAuth provider.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Username string
}

// OAuthProvider wraps one configured authorization-code flow.
type OAuthProvider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	parse       func([]byte) (Identity, error)
}

// ProviderRegistry holds the configured OAuth providers by name.
type ProviderRegistry map[string]*OAuthProvider

// NewProviderRegistry builds the registry from configured credentials.
// Providers with missing credentials are simply absent.
func NewProviderRegistry(baseURL, googleID, googleSecret, discordID, discordSecret string) ProviderRegistry {
	registry := make(ProviderRegistry)
	if googleID != "" && googleSecret != "" {
		registry["google"] = &OAuthProvider{
			name: "google",
			config: &oauth2.Config{
				ClientID:     googleID,
				ClientSecret: googleSecret,
				RedirectURL:  baseURL + "/auth/oauth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
					TokenURL: "https://oauth2.googleapis.com/token",
				},
			},
			userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
			parse:       parseGoogleIdentity,
		}
	}
	if discordID != "" && discordSecret != "" {
		registry["discord"] = &OAuthProvider{
			name: "discord",
			config: &oauth2.Config{
				ClientID:     discordID,
				ClientSecret: discordSecret,
				RedirectURL:  baseURL + "/auth/oauth/discord/callback",
				Scopes:       []string{"identify", "email"},
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://discord.com/oauth2/authorize",
					TokenURL: "https://discord.com/api/oauth2/token",
				},
			},
			userInfoURL: "https://discord.com/api/users/@me",
			parse:       parseDiscordIdentity,
		}
	}
	return registry
}

// AuthCodeURL builds the provider redirect for the given CSRF state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange swaps the authorization code for an identity.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: %s code exchange: %w", p.name, err)
	}
	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: %s userinfo: %w", p.name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("auth: %s userinfo status %d", p.name, resp.StatusCode)
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Identity{}, err
	}
	return p.parse(raw)
}

func parseGoogleIdentity(raw []byte) (Identity, error) {
	var payload struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Identity{}, err
	}
	if payload.Sub == "" || payload.Email == "" {
		return Identity{}, fmt.Errorf("auth: google userinfo incomplete")
	}
	return Identity{Provider: "google", Subject: payload.Sub, Email: payload.Email, Username: payload.Name}, nil
}

func parseDiscordIdentity(raw []byte) (Identity, error) {
	var payload struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Identity{}, err
	}
	if payload.ID == "" || payload.Email == "" {
		return Identity{}, fmt.Errorf("auth: discord userinfo incomplete")
	}
	return Identity{Provider: "discord", Subject: payload.ID, Email: payload.Email, Username: payload.Username}, nil
}
