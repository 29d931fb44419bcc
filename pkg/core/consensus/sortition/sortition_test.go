package sortition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
)

func pk(b byte) []byte {
	k := make([]byte, 96)
	k[0] = b
	return k
}

func provisioners(n int) *user.Provisioners {
	p := user.NewProvisioners()
	for i := 0; i < n; i++ {
		p.Add(pk(byte(i+1)), user.Stake{Amount: uint64(100 * (i + 1)), EndHeight: 1000})
	}
	return p
}

func TestCreateCommitteeIsDeterministic(t *testing.T) {
	p := provisioners(10)
	cfg := Config{Seed: []byte("seed"), Round: 5, Iteration: 1, Step: 1, Size: 64}

	first, err := CreateCommittee(cfg, p)
	require.NoError(t, err)

	second, err := CreateCommittee(cfg, p)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestCreateCommitteeExcludesGenerator(t *testing.T) {
	p := provisioners(5)
	excluded := pk(1)
	cfg := Config{Seed: []byte("seed"), Round: 5, Iteration: 1, Step: 1, Size: 64, Exclusion: [][]byte{excluded}}

	committee, err := CreateCommittee(cfg, p)
	require.NoError(t, err)

	assert.Equal(t, 0, Verify(committee, excluded))
}

func TestVerifyUnknownMemberReturnsZero(t *testing.T) {
	p := provisioners(5)
	cfg := Config{Seed: []byte("seed"), Round: 5, Iteration: 1, Step: 1, Size: 64}

	committee, err := CreateCommittee(cfg, p)
	require.NoError(t, err)

	assert.Equal(t, 0, Verify(committee, pk(250)))
}

func TestGetGeneratorSingleWinner(t *testing.T) {
	p := provisioners(10)
	gen, err := GetGenerator(p, 5, 0, []byte("seed"))
	require.NoError(t, err)
	assert.NotEmpty(t, gen)
}
