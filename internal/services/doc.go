// Package services implements the authenticated request gateway to the
// Spotify Web API and the typed listening-stats endpoints built on it.
//
// # Gateway
//
// Every outbound call goes through [Gateway.Do]:
//
//  1. The credential record is run through the refresh engine, so no request
//     ever carries a token known to be expired past the safety margin.
//  2. The access token is attached as a bearer credential and the request
//     executed against the API with a bounded timeout.
//  3. A 401 from upstream (token revoked out-of-band) triggers exactly one
//     forced refresh and one retry. A second 401 surfaces as
//     [shared.ErrUnauthenticated] and the session must be torn down.
//  4. Any other upstream failure is wrapped in [*UpstreamError] with the
//     status and body attached, and is never retried by the gateway.
//
// Do returns the credential record it ended up with; the web layer persists
// it before writing the response so the client's next request carries the
// refreshed credentials.
//
// # Endpoints
//
// [Gateway.Profile], [Gateway.TopTracks], [Gateway.TopArtists], and
// [Gateway.RecentlyPlayed] wrap the stats resources with pass-through
// time_range and limit parameters, defaulting to medium_term and 20.
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
package services
