// Package ownerkey derives storage keys from an owner identity so that
// per-owner entries never carry the raw email.
package ownerkey

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/mistakeknot/tasksync/internal/core"
)

const (
	keyLen = 16
	salt   = "tasksync-owner-key"
)

// Purposes of derived keys. Distinct purposes give unrelated keys for the same owner.
const (
	PurposePinnedTasks = "pinnedTasks"
	PurposeLastSync    = "lastSyncTime"
)

// Derive returns a stable hex key for (purpose, email). Emails are compared
// case-insensitively.
func Derive(purpose, email string) string {
	email = core.NormalizeEmail(email)
	r := hkdf.New(sha256.New, []byte(email), []byte(salt), []byte(purpose))
	buf := make([]byte, keyLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		// hkdf only fails after 255*HashLen bytes
		panic("ownerkey: " + err.Error())
	}
	return purpose + "_" + hex.EncodeToString(buf)
}
