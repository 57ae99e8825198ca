package auth

import (
	"fmt"
	"net/http"

	"chainforge/internal/definition"
	"chainforge/internal/util"
)

// ApplyHeaders sets request headers for authentication types that use them
// directly: "none", "api_key", "bearer", and "basic". NTLM needs its initial
// basic credentials here too; OAuth2 is handled entirely by the client
// transport (see httpclient).
func ApplyHeaders(req *http.Request, authCfg *definition.AuthConfig) error {
	if authCfg == nil {
		return nil
	}
	creds := authCfg.Credentials
	if creds == nil {
		creds = map[string]string{}
	}
	switch authCfg.Type {
	case "", "none":
		return nil
	case "api_key":
		key, ok := creds["api_key"]
		if !ok || key == "" {
			return fmt.Errorf("api_key authentication selected, but 'api_key' not found in credentials")
		}
		req.Header.Set("Authorization", "Bearer "+util.ExpandEnvUniversal(key))
	case "bearer":
		token, ok := creds["token"]
		if !ok || token == "" {
			return fmt.Errorf("bearer authentication selected, but 'token' not found in credentials")
		}
		req.Header.Set("Authorization", "Bearer "+util.ExpandEnvUniversal(token))
	case "basic", "ntlm":
		// The ntlmssp transport expects initial basic credentials on the request.
		username, ok1 := creds["username"]
		password, ok2 := creds["password"]
		if !ok1 || !ok2 {
			return fmt.Errorf("%s authentication selected, but 'username' or 'password' not found in credentials", authCfg.Type)
		}
		req.SetBasicAuth(util.ExpandEnvUniversal(username), util.ExpandEnvUniversal(password))
	case "oauth2":
		// Token acquisition and injection happen in the client transport.
		return nil
	default:
		return fmt.Errorf("unsupported authentication type configured: %s", authCfg.Type)
	}
	return nil
}
