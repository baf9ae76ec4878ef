package utils

import (
	"fmt"
	"unicode"
)

const PasswordMinLength = 8

// PasswordMaxBytes bcrypt 只接受 72 字节以内
const PasswordMaxBytes = 72

// PasswordSpecials 允许的特殊字符
const PasswordSpecials = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// CheckPasswordPolicy 返回所有不满足的规则，空切片表示通过
func CheckPasswordPolicy(pw string) []string {
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case isSpecial(r):
			special = true
		}
	}

	var errs []string
	if len([]rune(pw)) < PasswordMinLength {
		errs = append(errs, "Password must be at least 8 characters long")
	}
	if len(pw) > PasswordMaxBytes {
		errs = append(errs, fmt.Sprintf("Password must be at most %d bytes long", PasswordMaxBytes))
	}
	if !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !special {
		errs = append(errs, "Password must contain at least one special character ("+PasswordSpecials+")")
	}
	return errs
}

func isSpecial(r rune) bool {
	for _, s := range PasswordSpecials {
		if r == s {
			return true
		}
	}
	return false
}
