package integrity

import "crypto/sha256"

// merklePad is the padding leaf appended when a tree level has an odd
// count. It is a fixed domain-separated digest rather than a duplicate of
// the trailing element, so a batch ending in two equal fingerprints and the
// same batch without the duplicate keep distinct roots.
var merklePad = sha256.Sum256([]byte("academia-veritas:merkle-pad:v1"))

// BatchRoot folds an ordered batch of fingerprints into a single root
// digest suitable for anchoring in one ledger entry. The fold is iterative
// over levels, so arbitrarily large batches use constant stack. The root is
// deterministic and order-sensitive: reordering the batch changes it.
//
// An empty batch yields the digest of the empty string; a single-element
// batch yields that element itself.
func BatchRoot(fingerprints []Fingerprint) Fingerprint {
	switch len(fingerprints) {
	case 0:
		empty := sha256.Sum256(nil)
		return Fingerprint(empty[:])
	case 1:
		return append(Fingerprint(nil), fingerprints[0]...)
	}

	level := make([][]byte, len(fingerprints))
	for i, fp := range fingerprints {
		level[i] = fp
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, merklePad[:])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write(level[i])
			h.Write(level[i+1])
			next = append(next, h.Sum(nil))
		}
		level = next
	}
	return Fingerprint(level[0])
}
