package db

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// LocalIDPrefix marks ids that the server has not issued yet.
const LocalIDPrefix = "local_"

// GenerateLocalID returns a new local-only id: the prefix, the creation time
// in base36 milliseconds and 8 random hex characters.
func GenerateLocalID() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to the
		// clock so the id stays unique within this process.
		return LocalIDPrefix + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return LocalIDPrefix + strconv.FormatInt(time.Now().UnixMilli(), 36) + "_" + hex.EncodeToString(bytes)
}

// IsLocalOnly reports whether id was generated locally and never replaced by
// a server id.
func IsLocalOnly(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
