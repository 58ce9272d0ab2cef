package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const keyHashPrefix = 16

// fileHash returns the hex SHA-256 of the file's content. When the file
// cannot be read but can be stat'ed, it falls back to hashing size and
// modification time so a key can still be formed for unreadable inputs.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return "", fmt.Errorf("hash input: %w", err)
		}
		sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())))
		return hex.EncodeToString(sum[:]), nil
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// paramsHash returns the hex SHA-256 of the canonical JSON encoding of
// params. encoding/json emits map keys sorted and struct fields in
// declaration order, so equal parameter values hash identically.
func paramsHash(params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func cacheKey(typ Type, inputHash string, params any) (string, error) {
	pHash, err := paramsHash(params)
	if err != nil {
		return "", err
	}
	return joinKey(typ, inputHash, pHash), nil
}

func joinKey(typ Type, inputHash, pHash string) string {
	return fmt.Sprintf("%s_%s_%s", typ, inputHash[:keyHashPrefix], pHash[:keyHashPrefix])
}
