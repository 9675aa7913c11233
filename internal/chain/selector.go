package chain

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// mask250 keeps the low 250 bits so the hash fits a field element.
var mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector returns the entrypoint selector of name as a 0x-prefixed hex felt.
func Selector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	n := new(big.Int).SetBytes(h.Sum(nil))
	n.And(n, mask250)
	return "0x" + n.Text(16)
}
