// package testing contains shared testing utilities
package testing

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/soundstats/internal/models"
)

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// MockRefresher is a test double for the gateway's refresher dependency.
//
// Call counts are atomic so concurrency tests can assert on them.
type MockRefresher struct {
	EnsureFunc func(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error)
	ForceFunc  func(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error)

	EnsureCalls atomic.Int64
	ForceCalls  atomic.Int64
}

func (m *MockRefresher) EnsureFresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, bool, error) {
	m.EnsureCalls.Add(1)
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx, record)
	}
	return record, false, nil
}

func (m *MockRefresher) ForceRefresh(ctx context.Context, record *models.CredentialRecord) (*models.CredentialRecord, error) {
	m.ForceCalls.Add(1)
	if m.ForceFunc != nil {
		return m.ForceFunc(ctx, record)
	}
	return record, nil
}

// ValidRecord returns a credential record that passes validation, expiring at
// the given milliseconds-since-epoch timestamp.
func ValidRecord(expiresAt int64) *models.CredentialRecord {
	return &models.CredentialRecord{
		AccessToken:  "test_access_token",
		RefreshToken: "test_refresh_token",
		ExpiresAt:    expiresAt,
		User: models.UserProfile{
			ID:          "test_user",
			DisplayName: "Test User",
			Email:       "test@example.com",
		},
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
