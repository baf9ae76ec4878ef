package utils

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

func NewID() string { return uuid.NewString() }

// RandomToken 生成 n 字节随机数的 base64url 编码（无填充）
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
