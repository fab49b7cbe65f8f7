package hashutil

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3File hashes a file without loading it into memory. Used to verify
// downloaded model files against catalog digests.
func Blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Seed64 reduces data to a stable 64-bit seed.
func Seed64(data []byte) uint64 {
	hash := blake3.Sum256(data)
	return binary.LittleEndian.Uint64(hash[:8])
}
