package postgres

import (
	"fmt"
	"math/big"
)

// parseBig converts a NUMERIC value selected as text into a big.Int.
// Amounts are stored as NUMERIC(78,0) and always round-trip through
// their decimal string form; pgtype's binary NUMERIC codec has no
// big.Int target.
func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed numeric %q", s)
	}
	return n, nil
}
