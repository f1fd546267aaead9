// Package xid builds short, prefixed identifiers for catalog and customer
// records, e.g. "cus-3f9a1c2b7d4e".
package xid

import (
	"strings"

	"github.com/google/uuid"
)

const randomLen = 12

func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw[:randomLen]
	}
	return prefix + "-" + raw[:randomLen]
}
