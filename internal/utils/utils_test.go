package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box := NewSecretBox("test-key")

	sealed, err := box.Seal("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	again, err := box.Seal("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestSecretBoxWrongKey(t *testing.T) {
	sealed, err := NewSecretBox("one").Seal("secret")
	require.NoError(t, err)

	_, err = NewSecretBox("two").Open(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = NewSecretBox("one").Open("not-base64!")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestSecretBoxEmpty(t *testing.T) {
	box := NewSecretBox("k")
	sealed, err := box.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := box.Open("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("jwt-test")

	token, err := GenerateJWT("ops@example.com", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Operator)
	assert.Equal(t, RoleAdmin, claims.Role)

	expired, err := GenerateJWT("ops@example.com", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)
}

func TestSlugAndUPCValidation(t *testing.T) {
	for _, s := range []string{"ridgeline", "a1", "big-box-2"} {
		assert.True(t, IsValidSlug(s), s)
	}
	for _, s := range []string{"", "a", "Ridgeline", "-abc", "has_underscore", "has space"} {
		assert.False(t, IsValidSlug(s), s)
	}

	for _, s := range []string{"12345678", "000111222333", "0001112223334", "00011122233345"} {
		assert.True(t, IsValidUPC(s), s)
	}
	for _, s := range []string{"", "1234567", "12345678901", "000111222333456", "00011122233a"} {
		assert.False(t, IsValidUPC(s), s)
	}
}

func TestValidateStructTags(t *testing.T) {
	type req struct {
		Slug string `validate:"required,slug"`
		UPC  string `validate:"omitempty,upc"`
	}

	assert.NoError(t, ValidateStruct(req{Slug: "cascade", UPC: "000111222333"}))

	err := ValidateStruct(req{Slug: "Bad Slug", UPC: "12"})
	require.Error(t, err)
	errs := GetValidationErrors(err)
	require.Len(t, errs, 2)
	assert.Equal(t, "slug", errs[0].Tag)
	assert.Equal(t, "upc", errs[1].Tag)
}
