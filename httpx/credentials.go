package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/oauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/lead-scorer/errs"
)

// Users is the account and refresh-token storage behind the bearer server.
type Users interface {
	PasswordHash(ctx context.Context, username string) ([]byte, error)
	StoreToken(ctx context.Context, username, tokenID, refreshTokenID string) error
	ConsumeToken(ctx context.Context, username, tokenID, refreshTokenID string) error
}

// OwnerRole is the only role handed out: every account owns its own forms.
const OwnerRole = "owner"

type credentialsVerifier struct {
	users Users
}

func CredentialsVerifier(users Users) oauth.CredentialsVerifier {
	return &credentialsVerifier{users}
}

// NewBearerServer issues and refreshes owner tokens signed with secret.
func NewBearerServer(users Users, secret string, ttl time.Duration) *oauth.BearerServer {
	return oauth.NewBearerServer(secret, ttl, CredentialsVerifier(users), nil)
}

func (cv *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	hash, err := cv.users.PasswordHash(r.Context(), username)
	if err != nil {
		return err
	}

	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	if err != nil {
		return errs.New(errs.Auth, "auth.validate_user", "invalid credentials")
	}
	return nil
}
func (cv *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cv.users.StoreToken(context.Background(), credential, tokenID, refreshTokenID)
}
func (cv *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	return cv.users.ConsumeToken(context.Background(), credential, tokenID, refreshTokenID)
}
func (*credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{"roles": OwnerRole}, nil
}
func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}
func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errs.New(errs.Auth, "auth.validate_client", "client credentials are not supported")
}
