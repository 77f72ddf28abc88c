package integrity

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func merkleLeaf(b byte) Fingerprint {
	fp := make(Fingerprint, FingerprintSize)
	for i := range fp {
		fp[i] = b
	}
	return fp
}

func TestBatchRootEmpty(t *testing.T) {
	empty := sha256.Sum256(nil)
	assert.Equal(t, Fingerprint(empty[:]).Hex(), BatchRoot(nil).Hex())
	assert.Equal(t, Fingerprint(empty[:]).Hex(), BatchRoot([]Fingerprint{}).Hex())
}

func TestBatchRootSingleLeafIsLeaf(t *testing.T) {
	leaf := merkleLeaf(0xaa)
	root := BatchRoot([]Fingerprint{leaf})
	assert.Equal(t, leaf.Hex(), root.Hex())

	// The root must be a copy, not a view of the caller's slice.
	root[0] = 0x00
	assert.Equal(t, byte(0xaa), leaf[0])
}

func TestBatchRootDeterministicAndOrderSensitive(t *testing.T) {
	a, b := merkleLeaf(0x01), merkleLeaf(0x02)

	assert.Equal(t, BatchRoot([]Fingerprint{a, b}).Hex(), BatchRoot([]Fingerprint{a, b}).Hex())
	assert.NotEqual(t, BatchRoot([]Fingerprint{a, b}).Hex(), BatchRoot([]Fingerprint{b, a}).Hex())
}

func TestBatchRootMatchesManualTwoLevelFold(t *testing.T) {
	a, b, c, d := merkleLeaf(0x01), merkleLeaf(0x02), merkleLeaf(0x03), merkleLeaf(0x04)

	pair := func(l, r []byte) []byte {
		h := sha256.New()
		h.Write(l)
		h.Write(r)
		return h.Sum(nil)
	}
	want := pair(pair(a, b), pair(c, d))

	got := BatchRoot([]Fingerprint{a, b, c, d})
	assert.Equal(t, Fingerprint(want).Hex(), got.Hex())
}

func TestBatchRootOddCountUsesPaddingLeaf(t *testing.T) {
	a, b, c := merkleLeaf(0x01), merkleLeaf(0x02), merkleLeaf(0x03)

	odd := BatchRoot([]Fingerprint{a, b, c})
	withTrailingDuplicate := BatchRoot([]Fingerprint{a, b, c, c})

	// Domain-separated padding keeps [a,b,c] distinct from [a,b,c,c],
	// which duplicate-last padding would conflate.
	assert.NotEqual(t, odd.Hex(), withTrailingDuplicate.Hex())
}

func TestBatchRootLargeBatchLeafSensitivity(t *testing.T) {
	batch := make([]Fingerprint, 0, 31)
	for i := 0; i < 31; i++ {
		batch = append(batch, merkleLeaf(byte(i)))
	}
	base := BatchRoot(batch)
	require.Len(t, []byte(base), FingerprintSize)

	mutated := append([]Fingerprint(nil), batch...)
	mutated[17] = merkleLeaf(0xee)
	assert.NotEqual(t, base.Hex(), BatchRoot(mutated).Hex())

	assert.Equal(t, base.Hex(), BatchRoot(batch).Hex())
}
