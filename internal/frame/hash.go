package frame

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Domain prefixes for digest computation. The version suffix allows a future
// change of encoding without colliding with stored digests.
const (
	DomainResult = "posepipe/result/v1"
	DomainChain  = "posepipe/chain/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Milli converts a coordinate or score to fixed point (thousandths), the only
// numeric form canonical JSON accepts.
func Milli(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// Digest returns the content digest of an emitted result. The image is not
// hashed; two runs over the same input agree when index, status and poses agree.
func Digest(r SequencedResult) (string, error) {
	poses := make([]any, len(r.Annotated.Poses))
	for i, p := range r.Annotated.Poses {
		kps := make([]any, len(p.Keypoints))
		for j, kp := range p.Keypoints {
			kps[j] = map[string]any{
				"name":  kp.Name,
				"x":     Milli(kp.X),
				"y":     Milli(kp.Y),
				"score": Milli(kp.Score),
			}
		}
		poses[i] = map[string]any{
			"score":     Milli(p.Score),
			"keypoints": kps,
		}
	}

	canonical, err := MarshalCanonical(map[string]any{
		"index":  r.Index,
		"status": string(r.Status()),
		"poses":  poses,
	})
	if err != nil {
		return "", fmt.Errorf("digest index %d: %w", r.Index, err)
	}
	return hashWithDomain(DomainResult, canonical), nil
}

// ChainDigest folds an ordered sequence of result digests into one run digest.
// Reordering, dropping or duplicating any element changes the output.
func ChainDigest(digests []string) string {
	prev := ""
	for _, d := range digests {
		prev = hashWithDomain(DomainChain, []byte(prev+d))
	}
	return prev
}
