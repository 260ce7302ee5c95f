// Package auth orchestrates the three-legged OAuth handshake with the
// identity provider: authorization URL construction, one-time state
// issuance and validation, code-for-token exchange, ID-token signature
// verification, session-fixation defense, and final session creation.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/pulsetrack/pulsetrack/internal/errors"
	"github.com/pulsetrack/pulsetrack/kv"
	"github.com/pulsetrack/pulsetrack/sessions"
	"github.com/pulsetrack/pulsetrack/users"
)

// providerTimeout bounds every outbound call to the identity provider
// (token exchange, userinfo, key-set fetch). Provider outages must not
// hold request handlers open indefinitely.
const providerTimeout = 10 * time.Second

// Sanitized messages surfaced to the browser via the error redirect.
// Raw provider errors and token material stay in server logs.
const (
	msgAuthFailed     = "Authentication failed"
	msgInvalidState   = "Invalid or expired state"
	msgInvalidIDToken = "Invalid ID token"
	msgMissingParams  = "Invalid authentication response"
)

// Flow runs one authentication attempt end to end. It is safe for
// concurrent use; all mutable state lives in the key-value store.
type Flow struct {
	oauth       *oauth2.Config
	provider    *oidc.Provider
	verifier    *oidc.IDTokenVerifier
	store       kv.Store
	sessions    *sessions.Manager
	users       users.Repo
	frontendURL string
	production  bool
	httpClient  *http.Client
	nowTime     func() time.Time
}

// FlowOption modifies a Flow instance.
type FlowOption func(*Flow)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowTime = nowFunc
	}
}

// FlowParams carries the provider and deployment settings NewFlow needs.
type FlowParams struct {
	IssuerURL    string // OIDC issuer, discovered at construction
	ClientID     string
	ClientSecret string
	RedirectURL  string
	FrontendURL  string // browser destination after the flow finishes
	Production   bool   // controls the session cookie's Secure flag
}

// NewFlow discovers the provider's endpoints and key set and wires the
// flow's collaborators. Discovery happening here, once, means a
// misconfigured issuer fails the process at startup rather than on the
// first login.
func NewFlow(ctx context.Context, params FlowParams, store kv.Store, sessionManager *sessions.Manager, userRepo users.Repo, options ...FlowOption) (*Flow, error) {
	if store == nil {
		return nil, errors.New("[NewFlow] store is required")
	}
	if sessionManager == nil {
		return nil, errors.New("[NewFlow] session manager is required")
	}
	if userRepo == nil {
		return nil, errors.New("[NewFlow] user repo is required")
	}
	if params.ClientID == "" || params.ClientSecret == "" {
		return nil, errors.New("[NewFlow] client credentials are required")
	}

	httpClient := &http.Client{Timeout: providerTimeout}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), params.IssuerURL)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[NewFlow] provider discovery")
	}

	f := &Flow{
		oauth: &oauth2.Config{
			ClientID:     params.ClientID,
			ClientSecret: params.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  params.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		provider:    provider,
		verifier:    provider.Verifier(&oidc.Config{ClientID: params.ClientID}),
		store:       store,
		sessions:    sessionManager,
		users:       userRepo,
		frontendURL: params.FrontendURL,
		production:  params.Production,
		httpClient:  httpClient,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// Initiate starts the handshake: issue state and nonce, persist the
// state record, and send the browser to the provider's authorization
// endpoint.
func (f *Flow) Initiate(w http.ResponseWriter, r *http.Request) {
	state := randomToken(32)
	nonce := randomToken(32)

	if err := issueState(r.Context(), f.store, state, nonce, f.nowTime()); err != nil {
		log.Error().Err(err).Msg("failed to persist oauth state")
		f.redirectError(w, r, msgAuthFailed)
		return
	}

	authURL := f.oauth.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.AccessTypeOffline)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the handshake. Steps run strictly in order; the
// state key is consumed (read + deleted in one round trip) before any
// trust is extended to the code parameter, so a state can never be
// replayed even when a later step fails.
func (f *Flow) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.FormValue("state")
	code := r.FormValue("code")

	if errParam := r.FormValue("error"); errParam != "" {
		log.Warn().Str("providerError", errParam).
			Str("description", r.FormValue("error_description")).
			Msg("provider returned an authorization error")
		f.redirectError(w, r, msgAuthFailed)
		return
	}
	if code == "" || state == "" {
		log.Warn().Bool("hasCode", code != "").Bool("hasState", state != "").
			Msg("callback missing code or state")
		f.redirectError(w, r, msgMissingParams)
		return
	}

	stateRec, err := consumeState(r.Context(), f.store, state)
	if apperrors.Is(err, apperrors.ErrStateNotFound) {
		// Never issued, expired, or already consumed: identical from
		// the outside.
		log.Warn().Msg("callback with unknown or reused state")
		f.redirectError(w, r, msgInvalidState)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("state lookup failed")
		f.redirectError(w, r, msgAuthFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), providerTimeout)
	defer cancel()
	ctx = oidc.ClientContext(ctx, f.httpClient)

	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		// Provider error bodies are logged server-side only.
		log.Error().Err(err).Msg("token exchange failed")
		f.redirectError(w, r, msgAuthFailed)
		return
	}

	userInfo, err := f.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		log.Error().Err(err).Msg("userinfo fetch failed")
		f.redirectError(w, r, msgAuthFailed)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		log.Error().Msg("token response carried no ID token")
		f.redirectError(w, r, msgInvalidIDToken)
		return
	}

	// Real cryptographic verification against the provider's published
	// key set, plus audience and expiry checks. Decoding claims without
	// a signature check is not a defense against token substitution.
	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Error().Err(err).Msg("ID token verification failed")
		f.redirectError(w, r, msgInvalidIDToken)
		return
	}

	var claims struct {
		Nonce   string `json:"nonce"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		log.Error().Err(err).Msg("failed to extract ID token claims")
		f.redirectError(w, r, msgInvalidIDToken)
		return
	}
	if claims.Nonce != stateRec.Nonce {
		log.Warn().Msg("ID token nonce mismatch")
		f.redirectError(w, r, msgInvalidIDToken)
		return
	}

	profile := f.buildProfile(idToken.Subject, claims.Email, claims.Name, claims.Picture, userInfo)

	// Local persistence is not in the trust path for authentication:
	// a profile write failing must not abort the login.
	if _, err := f.users.Upsert(ctx, profile); err != nil {
		log.Warn().Err(err).Msg("user upsert failed, continuing")
	}

	// Session-fixation defense: any session the browser already carries
	// dies before the fresh one is issued.
	if old := sessions.ExtractSessionID(r); old != "" {
		if _, err := f.sessions.Delete(r.Context(), old); err != nil {
			log.Warn().Err(err).Msg("failed to delete pre-existing session")
		}
	}

	sessionID, err := f.sessions.Create(r.Context(), sessions.UserData{
		UserID:       profile.ExternalID,
		Email:        profile.Email,
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	})
	if err != nil {
		log.Error().Err(err).Msg("session creation failed")
		f.redirectError(w, r, msgAuthFailed)
		return
	}

	http.SetCookie(w, f.sessions.SessionCookie(sessionID, f.production))
	http.Redirect(w, r, f.frontendURL+"?auth=success", http.StatusFound)
}

// Logout destroys the request's session, if any, and clears the cookie.
// Idempotent: succeeds whether or not a session existed.
func (f *Flow) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := sessions.ExtractSessionID(r); sessionID != "" {
		if _, err := f.sessions.Delete(r.Context(), sessionID); err != nil {
			log.Error().Err(err).Msg("session delete failed during logout")
		}
	}

	http.SetCookie(w, f.sessions.DeleteCookie(f.production))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Logged out",
		"success": true,
	})
}

// buildProfile merges ID-token claims with the userinfo response,
// preferring userinfo for mutable profile fields. Identity (the subject)
// always comes from the verified ID token.
func (f *Flow) buildProfile(subject, email, name, picture string, userInfo *oidc.UserInfo) users.Profile {
	profile := users.Profile{
		ExternalID:  subject,
		Email:       email,
		DisplayName: name,
		AvatarURL:   picture,
	}

	var infoClaims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := userInfo.Claims(&infoClaims); err == nil {
		if infoClaims.Email != "" {
			profile.Email = infoClaims.Email
		}
		if infoClaims.Name != "" {
			profile.DisplayName = infoClaims.Name
		}
		if infoClaims.Picture != "" {
			profile.AvatarURL = infoClaims.Picture
		}
	}
	return profile
}

func (f *Flow) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, f.frontendURL+"?auth=error&message="+url.QueryEscape(message), http.StatusFound)
}
