/*
Package randx provides functions for generating cryptographically secure random identifiers.

It is used to pick a nickname for accounts registered without one.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// NicknamePrefix starts every generated nickname.
	NicknamePrefix = "User_"

	// NicknameSuffixLength is the fixed length of the Base62 part of a generated nickname.
	NicknameSuffixLength = 6
)

// Base62 returns a random Base62 string of the given length using crypto/rand.
func Base62(length int) (string, error) {
	result := make([]byte, length)

	for i := range length {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %v", err)
		}

		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// Nickname generates a display name such as "User_a9Xk2Q".
func Nickname() (string, error) {
	suffix, err := Base62(NicknameSuffixLength)
	if err != nil {
		return "", err
	}
	return NicknamePrefix + suffix, nil
}
