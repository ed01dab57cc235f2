// Package auth drives the Spotify authorization-code handshake and owns the
// credential lifecycle for authenticated sessions.
//
// # Authorization Flow
//
// The web layer generates a state token, parks it in a short-TTL cookie, and
// redirects the browser to [Authenticator.AuthURL]. On callback,
// [Authenticator.Complete] validates the returned state (constant-time),
// exchanges the authorization code for tokens with HTTP Basic client
// authentication, fetches the user identity, and returns a validated
// [models.CredentialRecord]. Nothing partial is ever returned: any failure
// along the way surfaces as one of the sentinel errors in internal/shared.
//
// # Token Refresh
//
// [Authenticator.EnsureFresh] is the cheap common path: when the access token
// is still valid past the freshness margin it returns the record untouched
// with no network call. Otherwise it performs one refresh-grant call,
// adopting a rotated refresh token when the provider issues one.
// [Authenticator.ForceRefresh] takes the same path but skips the expiry
// check, for tokens rejected upstream despite looking fresh locally.
//
// Concurrent stale callers for the same session are collapsed onto a single
// upstream call through a [singleflight.Group] keyed by refresh token, so a
// provider that invalidates a refresh token after first use never sees the
// same value raced from two goroutines.
package auth
