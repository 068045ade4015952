package randstr

import (
	"crypto/rand"
	"math/big"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// Base36 returns n random characters from [0-9a-z].
func Base36(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base36)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = base36[idx.Int64()]
	}
	return string(out), nil
}
