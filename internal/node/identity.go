package node

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strings"
)

const (
	peerIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	peerIDPrefix   = "cofe"
	peerIDBits     = 256
)

// GeneratePeerID returns a random base62 peer id.
func GeneratePeerID() (string, error) {
	rawBytes := make([]byte, (peerIDBits+7)/8)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", err
	}
	raw := base62Encode(rawBytes)
	if expected := base62Length(peerIDBits); len(raw) < expected {
		raw = strings.Repeat("0", expected-len(raw)) + raw
	}
	return peerIDPrefix + raw, nil
}

// ensurePeerID reads the node's id from path, creating it on first use.
func ensurePeerID(path string) (string, error) {
	if path == "" {
		return "", errors.New("identity path is empty")
	}
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}
	id, err := GeneratePeerID()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", err
	}
	return id, nil
}

func base62Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		return "0"
	}
	base := big.NewInt(int64(len(peerIDAlphabet)))
	zero := big.NewInt(0)
	var out []byte
	for n.Cmp(zero) > 0 {
		mod := new(big.Int)
		n.DivMod(n, base, mod)
		out = append(out, peerIDAlphabet[mod.Int64()])
	}
	// reverse
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base62Length(bits int) int {
	if bits <= 0 {
		return 0
	}
	return int(math.Ceil(float64(bits) / math.Log2(62)))
}
