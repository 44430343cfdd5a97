package idtoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestIssueAndParseEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	v, err := NewVerifier(Config{PrivateKey: priv, PublicKey: pub, Issuer: "civic-id", Audience: "civiclens"})
	require.NoError(t, err)

	tok, err := v.Issue("uid-1", "ada@example.com", "Ada")
	require.NoError(t, err)

	claims, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.Name)
}

func TestVerifyOnlyRejectsIssue(t *testing.T) {
	pub, _ := newEdKeys(t)
	v, err := NewVerifier(Config{PublicKey: pub})
	require.NoError(t, err)

	_, err = v.Issue("uid", "", "")
	assert.ErrorIs(t, err, ErrSigningKeyMissing)
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	v, err := NewVerifier(Config{PublicKey: pub})
	require.NoError(t, err)

	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "uid",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	require.NoError(t, err)

	_, err = v.Parse(tok)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuerAndMissingSubject(t *testing.T) {
	_, priv := newEdKeys(t)
	v, err := NewVerifier(Config{PrivateKey: priv, Issuer: "civic-id"})
	require.NoError(t, err)

	other := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "uid",
		Issuer:    "someone-else",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, other).SignedString(priv)
	_, err = v.Parse(tok)
	assert.Error(t, err)

	noSub := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "civic-id",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, _ = gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, noSub).SignedString(priv)
	_, err = v.Parse(tok)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestParseRequiresExpiry(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	v, err := NewVerifier(Config{SigningMethod: MethodHS256, PrivateKey: key})
	require.NoError(t, err)

	tok, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{Subject: "uid"},
	}).SignedString(key)
	_, err = v.Parse(tok)
	assert.Error(t, err)

	good, err := v.Issue("uid", "", "")
	require.NoError(t, err)
	_, err = v.Parse(good)
	assert.NoError(t, err)
}

func TestVerifyKeysByKid(t *testing.T) {
	pub, priv := newEdKeys(t)
	issuer, err := NewVerifier(Config{PrivateKey: priv, KeyID: "k1"})
	require.NoError(t, err)
	verifier, err := NewVerifier(Config{VerifyKeys: map[string][]byte{"k1": pub}})
	require.NoError(t, err)

	tok, err := issuer.Issue("uid", "", "")
	require.NoError(t, err)
	_, err = verifier.Parse(tok)
	assert.NoError(t, err)

	other, err := NewVerifier(Config{PrivateKey: priv, KeyID: "k2"})
	require.NoError(t, err)
	tok, err = other.Issue("uid", "", "")
	require.NoError(t, err)
	_, err = verifier.Parse(tok)
	assert.Error(t, err)
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	_, err := NewVerifier(Config{})
	assert.Error(t, err)

	_, err = NewVerifier(Config{SigningMethod: MethodHS256})
	assert.Error(t, err)

	_, err = NewVerifier(Config{SigningMethod: "rs512", PrivateKey: []byte("x")})
	assert.Error(t, err)

	pub, _ := newEdKeys(t)
	_, err = NewVerifier(Config{PublicKey: pub, Leeway: time.Hour})
	assert.Error(t, err)
}
