// Package idhash computes deterministic identifiers for order intents.
package idhash

import (
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/mr-tron/base58"
)

// ComputeIntentID computes a deterministic intent id using SHA256.
// Formula: SHA256(symbol|direction|round(size)|venue|floor(nowMs/bucketMs))
// encoded in base58. Colliding submissions within the same time bucket map
// to the same key, which is what makes the ledger idempotent.
func ComputeIntentID(symbol, direction string, size float64, venue string, nowMs, bucketMs int64) string {
	bucket := nowMs / bucketMs
	data := fmt.Sprintf("%s|%s|%d|%s|%d",
		symbol,
		direction,
		int64(math.Round(size)),
		venue,
		bucket,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
