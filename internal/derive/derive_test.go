package derive

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskIDBytesLittleEndian(t *testing.T) {
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, TaskIDBytes(1))
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, TaskIDBytes(0x0102030405060708))
}

func TestGraphAddressMatchesScheme(t *testing.T) {
	d := New("prog")
	h := sha256.New()
	h.Write([]byte("graph"))
	h.Write([]byte("alice"))
	h.Write([]byte{CanonicalSalt})
	h.Write([]byte("prog"))
	h.Write([]byte(marker))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), d.Graph("alice"))
}

func TestDerivationsAreDeterministicAndDistinct(t *testing.T) {
	d := New("")
	graph := d.Graph("alice")
	require.NoError(t, ValidAddress(graph))
	assert.Equal(t, graph, New(DefaultProgramID).Graph("alice"))
	assert.NotEqual(t, graph, d.Graph("bob"))

	t1 := d.Task(graph, 1)
	t2 := d.Task(graph, 2)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, t1, d.Task(graph, 1))

	seen := map[string]bool{}
	for _, a := range []string{graph, t1, t2, d.Escrow(t1), d.Receipt(t1, "agent"), d.Dispute(t1, "agent"), d.Receipt(t1, "other")} {
		require.NoError(t, ValidAddress(a))
		assert.False(t, seen[a], "duplicate address %s", a)
		seen[a] = true
	}
}

func TestProgramIDNamespacesAddresses(t *testing.T) {
	assert.NotEqual(t, New("a").Graph("alice"), New("b").Graph("alice"))
}

func TestValidAddressRejectsMalformed(t *testing.T) {
	assert.Error(t, ValidAddress("zz"))
	assert.Error(t, ValidAddress("abcd"))
}
