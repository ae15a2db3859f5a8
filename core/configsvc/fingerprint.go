package configsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const guardIDHashLen = 12

// snapshotHash fingerprints an aggregate. Clients compare hashes to tell
// whether two snapshots carry the same configuration. encoding/json emits
// struct fields in declaration order and map keys sorted, so equal
// aggregates encode identically.
func snapshotHash(cfg Aggregate) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode aggregate: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// GuardID names a guard for the remote service, which builds a guard once per
// id and reuses it. The id changes whenever the validator set changes, so an
// edited guard is rebuilt rather than served from the remote cache.
func GuardID(g GuardConfig) string {
	g = g.WithDefaults()
	name := strings.TrimSpace(g.Name)
	if name == "" {
		name = "guard"
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return name
	}
	sum := sha256.Sum256(raw)
	return name + "-" + hex.EncodeToString(sum[:])[:guardIDHashLen]
}
