package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ParamsHash builds the deterministic hash that keys an indicator feed. It
// covers indicator id, candle source and the raw parameter map; encoding/json
// sorts map keys, so equal parameter maps always hash identically.
func ParamsHash(indicatorID, source string, params map[string]any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal indicator params: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(indicatorID))
	h.Write([]byte{'\n'})
	h.Write([]byte(source))
	h.Write([]byte{'\n'})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
