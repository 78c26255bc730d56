package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/auth"
)

const testKey = "test-secret-key-for-testing-only"

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})

	token, expiresAt, err := svc.Issue("ten_acme", "usr_1", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), expiresAt, 5*time.Second)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ten_acme", claims.TenantID)
	assert.Equal(t, "usr_1", claims.Subject)
	assert.Equal(t, auth.DefaultIssuer, claims.Issuer)
}

func TestTokenService_IssueRequiresTenant(t *testing.T) {
	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})
	_, _, err := svc.Issue("", "usr_1", time.Minute)
	assert.ErrorIs(t, err, auth.ErrMissingTenant)
}

func TestTokenService_InvalidTokens(t *testing.T) {
	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})

	for _, token := range []string{"", "not.a.valid.jwt", "xxx.yyy.zzz"} {
		_, err := svc.Verify(token)
		assert.ErrorIs(t, err, auth.ErrInvalidToken, token)
	}
}

func TestTokenService_WrongKey(t *testing.T) {
	signer := auth.NewTokenService(auth.TokenConfig{SigningKey: "key-one"})
	verifier := auth.NewTokenService(auth.TokenConfig{SigningKey: "key-two"})

	token, _, err := signer.Issue("ten_acme", "usr_1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_WrongAudience(t *testing.T) {
	signer := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey, Audience: "other"})
	verifier := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})

	token, _, err := signer.Issue("ten_acme", "usr_1", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := issued
	svc := auth.NewTokenService(auth.TokenConfig{
		SigningKey: testKey,
		Now:        func() time.Time { return now },
	})

	token, _, err := svc.Issue("ten_acme", "usr_1", time.Minute)
	require.NoError(t, err)

	now = issued.Add(2 * time.Minute)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_MissingTenantClaim(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    auth.DefaultIssuer,
		Audience:  jwt.ClaimStrings{auth.DefaultAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	require.NoError(t, err)

	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrMissingTenant)
}

func TestTokenService_RejectsNoneAlgorithm(t *testing.T) {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultIssuer,
			Audience:  jwt.ClaimStrings{auth.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		TenantID: "ten_acme",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	svc := auth.NewTokenService(auth.TokenConfig{SigningKey: testKey})
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
