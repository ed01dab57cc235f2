package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization flow errors
	ErrStateMismatch    = fmt.Errorf("state token mismatch")
	ErrMissingCode      = fmt.Errorf("missing authorization code")
	ErrUpstreamExchange = fmt.Errorf("upstream token exchange failed")

	// Credential lifecycle errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrInvalidRecord    = fmt.Errorf("invalid credential record")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrUnauthenticated  = fmt.Errorf("upstream rejected credentials")

	// API and service errors
	ErrAPIRequest = fmt.Errorf("API request failed")
	ErrTimeout    = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
