package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies a single asset: the collection contract plus the token
// number inside it. The type is comparable so it can serve as a map key
// and a lock key.
type Key struct {
	Collection common.Address
	TokenID    uint64
}

// String renders the canonical "0xADDR/TOKENID" form used in lock keys,
// URLs and log fields.
func (k Key) String() string {
	return k.Collection.Hex() + "/" + strconv.FormatUint(k.TokenID, 10)
}

// ParseKey parses the canonical "0xADDR/TOKENID" form.
func ParseKey(s string) (Key, error) {
	addr, id, ok := strings.Cut(s, "/")
	if !ok {
		return Key{}, fmt.Errorf("domain: malformed asset key %q", s)
	}
	if !common.IsHexAddress(addr) {
		return Key{}, fmt.Errorf("domain: malformed collection address %q", addr)
	}
	tokenID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("domain: malformed token id %q: %w", id, err)
	}
	return Key{Collection: common.HexToAddress(addr), TokenID: tokenID}, nil
}
