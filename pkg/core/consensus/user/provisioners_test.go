package user

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte {
	k := make([]byte, PubKeySize)
	k[0] = b
	return k
}

func TestAddAndEligibleStake(t *testing.T) {
	p := NewProvisioners()
	p.Add(key(1), Stake{Amount: 100, StartHeight: 0, EndHeight: 10})
	p.Add(key(1), Stake{Amount: 50, StartHeight: 11, EndHeight: 20})

	assert.Equal(t, uint64(100), p.EligibleStake(key(1), 5))
	assert.Equal(t, uint64(50), p.EligibleStake(key(1), 15))
	assert.Equal(t, uint64(0), p.EligibleStake(key(1), 25))
}

func TestTotalWeightAt(t *testing.T) {
	p := NewProvisioners()
	p.Add(key(1), Stake{Amount: 100, StartHeight: 0, EndHeight: 10})
	p.Add(key(2), Stake{Amount: 200, StartHeight: 0, EndHeight: 10})

	assert.Equal(t, uint64(300), p.TotalWeightAt(5))
	assert.Equal(t, uint64(0), p.TotalWeightAt(50))
}

func TestSubsetSizeAt(t *testing.T) {
	p := NewProvisioners()
	p.Add(key(1), Stake{Amount: 100, StartHeight: 0, EndHeight: 10})
	p.Add(key(2), Stake{Amount: 200, StartHeight: 20, EndHeight: 30})

	assert.Equal(t, 1, p.SubsetSizeAt(5))
	assert.Equal(t, 1, p.SubsetSizeAt(25))
	assert.Equal(t, 0, p.SubsetSizeAt(100))
}

func TestMemberAtOrdering(t *testing.T) {
	p := NewProvisioners()
	p.Add(key(9), Stake{Amount: 1, EndHeight: 100})
	p.Add(key(1), Stake{Amount: 1, EndHeight: 100})
	p.Add(key(5), Stake{Amount: 1, EndHeight: 100})

	first, err := p.MemberAt(0)
	require.NoError(t, err)
	assert.Equal(t, key(1), first.PublicKeyBLS)

	_, err = p.MemberAt(10)
	assert.Error(t, err)
}

func TestSubtractFromStake(t *testing.T) {
	m := &Member{PublicKeyBLS: key(1)}
	m.AddStake(Stake{Amount: 30})

	subtracted := m.SubtractFromStake(10)
	assert.Equal(t, uint64(10), subtracted)
	assert.Equal(t, uint64(20), m.Stakes[0].Amount)

	subtracted = m.SubtractFromStake(100)
	assert.Equal(t, uint64(20), subtracted)
	assert.Equal(t, uint64(0), m.Stakes[0].Amount)
}

func TestMarshalUnmarshalProvisioners(t *testing.T) {
	p := NewProvisioners()
	p.Add(key(1), Stake{Amount: 100, StartHeight: 0, EndHeight: 10})
	p.Add(key(2), Stake{Amount: 200, StartHeight: 5, EndHeight: 50})

	buf := new(bytes.Buffer)
	require.NoError(t, MarshalProvisioners(buf, p))

	got, err := UnmarshalProvisioners(buf)
	require.NoError(t, err)

	assert.Equal(t, len(p.Members), len(got.Members))
	stake, err := got.GetStake(key(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stake)
}
