// Package utils provides secure random strings for tokens and series ids.
package utils

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const (
	letterIdxBits = 6
	letterIdxMask = 1<<letterIdxBits - 1
	letterIdxMax  = 63 / letterIdxBits
)

func randSecureNumber(bytesLen int) (uint64, error) {
	bRand := make([]byte, bytesLen)
	if _, err := rand.Read(bRand); err != nil {
		return 0, fmt.Errorf("could not read from rand source: %w", err)
	}
	var randUInt64 uint64
	if err := binary.Read(bytes.NewBuffer(bRand), binary.LittleEndian, &randUInt64); err != nil {
		return 0, fmt.Errorf("could not convert byte-array (length: %d bytes) to uint64: %w", bytesLen, err)
	}
	return randUInt64, nil
}

// RandString returns n random alphanumeric characters.
func RandString(n int) (string, error) {
	b := make([]byte, n)
	secureNum, err := randSecureNumber(8)
	if err != nil {
		return "", err
	}
	for i, cache, remain := n-1, secureNum, letterIdxMax; i >= 0; {
		if remain == 0 {
			secNum, err := randSecureNumber(8)
			if err != nil {
				return "", err
			}
			cache, remain = secNum, letterIdxMax
		}
		if idx := int(cache & letterIdxMask); idx < len(letters) {
			b[i] = letters[idx]
			i--
		}
		cache >>= letterIdxBits
		remain--
	}
	return string(b), nil
}
