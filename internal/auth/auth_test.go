package auth

import (
	"net/http"
	"testing"

	"chainforge/internal/definition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.test/data", nil)
	require.NoError(t, err)
	return req
}

func TestApplyHeaders(t *testing.T) {
	t.Setenv("SECRET_TOKEN", "env-tok")

	tests := []struct {
		name       string
		authCfg    *definition.AuthConfig
		wantHeader string
		wantValue  string
		wantErr    string
	}{
		{
			name:    "Nil Config",
			authCfg: nil,
		},
		{
			name:    "None Type",
			authCfg: &definition.AuthConfig{Type: "none"},
		},
		{
			name:       "API Key",
			authCfg:    &definition.AuthConfig{Type: "api_key", Credentials: map[string]string{"api_key": "key-1"}},
			wantHeader: "Authorization",
			wantValue:  "Bearer key-1",
		},
		{
			name:       "Bearer With Env Expansion",
			authCfg:    &definition.AuthConfig{Type: "bearer", Credentials: map[string]string{"token": "$SECRET_TOKEN"}},
			wantHeader: "Authorization",
			wantValue:  "Bearer env-tok",
		},
		{
			name:    "API Key Missing Credential",
			authCfg: &definition.AuthConfig{Type: "api_key"},
			wantErr: "'api_key' not found",
		},
		{
			name:    "Basic Missing Password",
			authCfg: &definition.AuthConfig{Type: "basic", Credentials: map[string]string{"username": "u"}},
			wantErr: "'username' or 'password' not found",
		},
		{
			name:    "OAuth2 Is A No-Op Here",
			authCfg: &definition.AuthConfig{Type: "oauth2"},
		},
		{
			name:    "Unsupported Type",
			authCfg: &definition.AuthConfig{Type: "digest"},
			wantErr: "unsupported authentication type",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(t)
			err := ApplyHeaders(req, tc.authCfg)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			if tc.wantHeader != "" {
				assert.Equal(t, tc.wantValue, req.Header.Get(tc.wantHeader))
			} else {
				assert.Empty(t, req.Header.Get("Authorization"))
			}
		})
	}
}

func TestApplyHeaders_BasicSetsAuth(t *testing.T) {
	req := newRequest(t)
	err := ApplyHeaders(req, &definition.AuthConfig{
		Type:        "basic",
		Credentials: map[string]string{"username": "amy", "password": "s3cret"},
	})
	require.NoError(t, err)
	username, password, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "amy", username)
	assert.Equal(t, "s3cret", password)
}

func TestApplyHeaders_NTLMSetsInitialBasicAuth(t *testing.T) {
	req := newRequest(t)
	err := ApplyHeaders(req, &definition.AuthConfig{
		Type:        "ntlm",
		Credentials: map[string]string{"username": `corp\amy`, "password": "pw"},
	})
	require.NoError(t, err)
	_, _, ok := req.BasicAuth()
	assert.True(t, ok, "ntlm negotiation starts from basic credentials on the request")
}
