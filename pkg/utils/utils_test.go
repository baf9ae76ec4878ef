package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	h, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	require.NotEqual(t, "Str0ng!Pass", h)
	require.True(t, CheckPassword("Str0ng!Pass", h))
	require.False(t, CheckPassword("wrong", h))
}

func TestCheckPasswordPolicy(t *testing.T) {
	require.Empty(t, CheckPasswordPolicy("Str0ng!Pass"))

	errs := CheckPasswordPolicy("weak")
	require.Len(t, errs, 4)
	require.Contains(t, errs, "Password must be at least 8 characters long")
	require.Contains(t, errs, "Password must contain at least one uppercase letter")
	require.Contains(t, errs, "Password must contain at least one number")

	require.Equal(t, []string{"Password must contain at least one special character (" + PasswordSpecials + ")"},
		CheckPasswordPolicy("Abcdefg1"))

	long := "Aa1!" + strings.Repeat("x", 69)
	require.Equal(t, []string{"Password must be at most 72 bytes long"}, CheckPasswordPolicy(long))
	require.Empty(t, CheckPasswordPolicy(long[:72]))
	// 多字节字符按字节计
	require.NotEmpty(t, CheckPasswordPolicy("Aa1!"+strings.Repeat("é", 35)))
}

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	require.NoError(t, err)
	b, err := RandomToken(32)
	require.NoError(t, err)
	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
}
