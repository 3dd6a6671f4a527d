package identity

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"m365prov/pkg/config"
)

// AccessToken is a bearer token plus its expiry.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// Authenticator acquires tokens for the operator. One instance backs one
// session; Reconnect discards it and builds a fresh one.
type Authenticator interface {
	Token(ctx context.Context, scopes []string) (AccessToken, error)
	SignOut(ctx context.Context) error
}

// Factory builds a new Authenticator.
type Factory func() (Authenticator, error)

type azureAuthenticator struct {
	cred azcore.TokenCredential
}

func (a *azureAuthenticator) Token(ctx context.Context, scopes []string) (AccessToken, error) {
	if a.cred == nil {
		return AccessToken{}, fmt.Errorf("signed out")
	}
	tok, err := a.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}

// SignOut drops the credential. Tokens live in the credential's memory cache
// only, so there is nothing to revoke.
func (a *azureAuthenticator) SignOut(context.Context) error {
	a.cred = nil
	return nil
}

// NewAzureFactory returns a Factory for the configured sign-in mode.
// Device-code instructions are written to prompt.
func NewAzureFactory(cfg config.Config, prompt io.Writer) Factory {
	return func() (Authenticator, error) {
		switch cfg.AuthMode {
		case "device":
			cred, err := azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
				ClientID: cfg.ClientID,
				TenantID: cfg.TenantID,
				UserPrompt: func(_ context.Context, msg azidentity.DeviceCodeMessage) error {
					_, err := fmt.Fprintln(prompt, msg.Message)
					return err
				},
			})
			if err != nil {
				return nil, err
			}
			return &azureAuthenticator{cred: cred}, nil
		case "browser", "":
			cred, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
				ClientID:    cfg.ClientID,
				TenantID:    cfg.TenantID,
				RedirectURL: "http://localhost",
			})
			if err != nil {
				return nil, err
			}
			return &azureAuthenticator{cred: cred}, nil
		default:
			return nil, fmt.Errorf("unsupported auth mode %q (expected browser or device)", cfg.AuthMode)
		}
	}
}
