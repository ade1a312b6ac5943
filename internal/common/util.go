package common

import "crypto/rand"

// GenerateRandByteArray returns size random bytes. It panics if the system
// random source fails, which only happens on a broken host.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray zeroes b in place. Used for key material.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
