package util

import (
	"math/rand"
	"strings"
)

const hexChars = "0123456789abcdef"

// RequestIDPrefix marks request correlation IDs in logs and headers.
const RequestIDPrefix = "req_"

// RandomHex returns a non-cryptographic hexadecimal string of length n.
func RandomHex(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(hexChars[rand.Intn(len(hexChars))])
	}
	return b.String()
}

// NewRequestID returns a short correlation ID for an HTTP request.
func NewRequestID() string {
	return RequestIDPrefix + RandomHex(16)
}
