package committee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vireo-chain/vireo/pkg/core/consensus/sortition"
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

func TestGetOrCreateIsMemoized(t *testing.T) {
	s := NewSet(provisioners(10))
	cfg := sortition.Config{Seed: []byte("seed"), Round: 1, Iteration: 1, Step: 1, Size: 64}

	c1, err := s.GetOrCreate(cfg)
	require.NoError(t, err)

	c2, err := s.GetOrCreate(cfg)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
}

func TestBitsRoundTripsThroughIntersectCluster(t *testing.T) {
	s := NewSet(provisioners(10))
	cfg := sortition.Config{Seed: []byte("seed"), Round: 1, Iteration: 1, Step: 1, Size: 64}

	c, err := s.GetOrCreate(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, c.Set())

	full := c.Bits(c.Set())
	cluster := c.IntersectCluster(full)

	assert.Equal(t, len(c.Set()), len(cluster.Set))
}

func TestQuorumThresholds(t *testing.T) {
	assert.Equal(t, 44, SuperMajority(64))
	assert.Equal(t, 33, Majority(64))
}

func TestVotesForUnknownMemberIsZero(t *testing.T) {
	s := NewSet(provisioners(5))
	cfg := sortition.Config{Seed: []byte("seed"), Round: 1, Iteration: 1, Step: 1, Size: 64}

	assert.Equal(t, 0, s.VotesFor(pk(250), cfg))
}
