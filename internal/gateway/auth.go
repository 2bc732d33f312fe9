package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Token builds the connection auth token for a user: the user id joined with
// the hex HMAC-SHA256 of the id under the signing secret. The token proves
// identity only; authorization stays server-side.
func Token(secret []byte, userID string) string {
	return userID + "." + hex.EncodeToString(sign(secret, userID))
}

// VerifyToken checks a token and returns the user id it asserts.
func VerifyToken(secret []byte, token string) (string, bool) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", false
	}
	userID, sigHex := token[:i], token[i+1:]
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(sig, sign(secret, userID)) {
		return "", false
	}
	return userID, true
}

func sign(secret []byte, userID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(userID))
	return mac.Sum(nil)
}
