package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashFile returns the SHA-256 hex digest of the raw upload bytes.
// It is the global duplicate-upload key; the file name plays no part.
func HashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashRow returns the SHA-256 hex digest of the row's canonical JSON form.
//
// encoding/json writes map keys in sorted order, so two rows with the same
// content hash identically regardless of column order. Null cells encode as
// JSON null and never collide with empty strings.
func HashRow(row Row) string {
	data, err := json.Marshal(row)
	if err != nil {
		// Only non-finite numbers fail to encode.
		data = fallbackRowBytes(row)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fallbackRowBytes encodes every cell as a [kind, rendered] pair. Cells never
// encode as JSON arrays in the normal form, so the two forms cannot collide.
func fallbackRowBytes(row Row) []byte {
	rendered := make(map[string][2]any, len(row))
	for k, v := range row {
		if v.IsNull() {
			rendered[k] = [2]any{v.Kind().String(), nil}
			continue
		}
		rendered[k] = [2]any{v.Kind().String(), v.String()}
	}
	data, _ := json.Marshal(rendered)
	return data
}
