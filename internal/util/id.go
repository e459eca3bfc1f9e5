package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ContentHash is the hex sha256 of a file's bytes.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ModelHash identifies an embedding model and its output size.
func ModelHash(model string, dims int) [32]byte {
	return sha256.Sum256([]byte(model + ":" + strconv.Itoa(dims)))
}
