package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/prepdeck/prepdeck/internal/models"
)

// GotrueAuth adapts the Supabase auth client to the AuthAPI the store
// needs. It is injected at startup; there is no package-global client.
type GotrueAuth struct {
	client gotrue.Client
}

// extractProjectRef extracts just the project reference ID from a Supabase
// URL, e.g. akrqbuajqkirdekonpzy.supabase.co -> akrqbuajqkirdekonpzy.
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	parts := strings.Split(url, ".")
	return parts[0]
}

func NewGotrueAuth(supabaseURL, supabaseKey string) *GotrueAuth {
	return &GotrueAuth{
		client: gotrue.New(extractProjectRef(supabaseURL), supabaseKey),
	}
}

func (g *GotrueAuth) SignIn(email, password string) (*models.Session, error) {
	res, err := g.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if res == nil || res.AccessToken == "" {
		return nil, fmt.Errorf("authentication failed: no access token in response")
	}

	return &models.Session{
		UserID:    res.User.ID.String(),
		Email:     res.User.Email,
		Token:     res.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(res.ExpiresIn) * time.Second),
	}, nil
}

func (g *GotrueAuth) SignUp(email, password string) (*models.Session, error) {
	_, err := g.client.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("signup failed: %w", err)
	}

	// Sign in to obtain the bearer token for the fresh account.
	return g.SignIn(email, password)
}

func (g *GotrueAuth) SignOut(token string) error {
	if err := g.client.WithToken(token).Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// HealthCheck verifies the provider is reachable, mirroring the connection
// test performed at startup.
func (g *GotrueAuth) HealthCheck() error {
	if _, err := g.client.GetSettings(); err != nil {
		return fmt.Errorf("failed to connect to auth provider: %w", err)
	}
	return nil
}
