package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	s, err := NewTokenService(testKeyHex, time.Hour)
	require.NoError(t, err)
	return s
}

func TestIssueAndVerify(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue(&domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin, Tier: domain.ClientPremium})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	p, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", p.UserID)
	assert.True(t, p.IsAdmin())
	assert.Equal(t, domain.ClientPremium, p.RateTier())
}

func TestVerify_UnknownRoleAndTierDegrade(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue(&domain.Principal{UserID: "p1", Role: "root", Tier: "GOLD"})
	require.NoError(t, err)

	p, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePlayer, p.Role)
	assert.Equal(t, domain.ClientAuthenticated, p.Tier)
}

func TestVerify_Rejections(t *testing.T) {
	s := newTestService(t)

	other, err := NewTokenService(strings.Repeat("f", 64), time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(&domain.Principal{UserID: "p1"})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	expired, err := s.Issue(&domain.Principal{UserID: "p1"})
	require.NoError(t, err)
	s.now = time.Now

	for name, token := range map[string]string{
		"garbage": "not-a-token",
		"foreign": foreign,
		"expired": expired,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(token)
			require.Error(t, err)
			assert.Equal(t, domainerrors.CodeUnauthorized, domainerrors.CodeOf(err))
		})
	}
}

func TestIssue_RequiresUser(t *testing.T) {
	s := newTestService(t)
	_, err := s.Issue(&domain.Principal{})
	assert.Equal(t, domainerrors.CodeInvalidInput, domainerrors.CodeOf(err))
}

func TestNewTokenService_BadKey(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenService(strings.Repeat("z", 64), time.Hour)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyHexSize)

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(filepath.Join(dir, "auth.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "auth.key"), []byte("abc"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}
