// Package oidctest runs a minimal OIDC provider on httptest for flow
// and handler tests: discovery document, token endpoint minting RS256
// ID tokens, userinfo, and a JWKS so real signature verification runs
// against it.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "oidctest-key"

// Provider is a fake identity provider. Configure the identity fields
// and per-endpoint failure switches, then point the flow's issuer at
// URL().
type Provider struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	clientID string

	mu            sync.Mutex
	nonce         string
	sub           string
	email         string
	name          string
	picture       string
	tokenError    bool
	userinfoError bool
	omitIDToken   bool
	signWrongKey  bool
}

// New starts the provider. Callers must Close it.
func New(clientID string) (*Provider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	p := &Provider{
		key:      key,
		clientID: clientID,
		sub:      "subject-1",
		email:    "pat@example.com",
		name:     "Pat Example",
		picture:  "https://example.com/pat.png",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discoveryHandler)
	mux.HandleFunc("POST /token", p.tokenHandler)
	mux.HandleFunc("GET /userinfo", p.userinfoHandler)
	mux.HandleFunc("GET /keys", p.keysHandler)

	p.server = httptest.NewServer(mux)
	return p, nil
}

func (p *Provider) Close()      { p.server.Close() }
func (p *Provider) URL() string { return p.server.URL }

// SetNonce sets the nonce claim embedded in the next minted ID token.
func (p *Provider) SetNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

// SetIdentity overrides the identity the provider asserts.
func (p *Provider) SetIdentity(sub, email, name, picture string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sub, p.email, p.name, p.picture = sub, email, name, picture
}

// FailToken makes the token endpoint return 500.
func (p *Provider) FailToken(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = fail
}

// FailUserinfo makes the userinfo endpoint return 500.
func (p *Provider) FailUserinfo(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoError = fail
}

// OmitIDToken drops the id_token from the token response.
func (p *Provider) OmitIDToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omit
}

// SignWithWrongKey mints ID tokens with a key the JWKS does not
// publish, so signature verification must fail.
func (p *Provider) SignWithWrongKey(wrong bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signWrongKey = wrong
}

func (p *Provider) discoveryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                                p.server.URL,
		"authorization_endpoint":                p.server.URL + "/authorize",
		"token_endpoint":                        p.server.URL + "/token",
		"userinfo_endpoint":                     p.server.URL + "/userinfo",
		"jwks_uri":                              p.server.URL + "/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *Provider) tokenHandler(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokenError {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}

	body := map[string]any{
		"access_token":  "test-access-token",
		"token_type":    "Bearer",
		"refresh_token": "test-refresh-token",
		"expires_in":    3600,
	}
	if !p.omitIDToken {
		idToken, err := p.mintIDToken()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		body["id_token"] = idToken
	}
	writeJSON(w, body)
}

func (p *Provider) userinfoHandler(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userinfoError {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"sub":     p.sub,
		"email":   p.email,
		"name":    p.name,
		"picture": p.picture,
	})
}

func (p *Provider) keysHandler(w http.ResponseWriter, r *http.Request) {
	pub := p.key.Public().(*rsa.PublicKey)
	writeJSON(w, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) mintIDToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":     p.server.URL,
		"aud":     p.clientID,
		"sub":     p.sub,
		"email":   p.email,
		"name":    p.name,
		"picture": p.picture,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
	if p.nonce != "" {
		claims["nonce"] = p.nonce
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID

	signingKey := p.key
	if p.signWrongKey {
		wrong, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return "", err
		}
		signingKey = wrong
	}
	return token.SignedString(signingKey)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
