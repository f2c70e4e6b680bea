package sdk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// maxNonce matches the server's search cap.
const maxNonce = 10_000_000

// Solve brute-forces a withdrawal challenge. It returns false when no
// nonce below the cap works, which the server treats as unsolvable too.
func Solve(ch Challenge) (uint64, bool) {
	prefix := strings.Repeat("0", ch.Difficulty)
	for nonce := uint64(0); nonce < maxNonce; nonce++ {
		sum := sha256.Sum256([]byte(ch.Seed + strconv.FormatUint(nonce, 10)))
		if strings.HasPrefix(hex.EncodeToString(sum[:]), prefix) {
			return nonce, true
		}
	}
	return 0, false
}
