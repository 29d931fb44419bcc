package quorum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/sortition"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
)

func keyPair(t *testing.T, seed byte) (*bls.SecretKey, *bls.PublicKey) {
	t.Helper()
	ikm := make([]byte, 32)
	ikm[0] = seed
	sk, pk, err := bls.KeyGen(ikm)
	require.NoError(t, err)
	return sk, pk
}

func TestVerifyStepVotesRejectsBelowQuorum(t *testing.T) {
	p := user.NewProvisioners()
	_, pk1 := keyPair(t, 1)
	p.Add(pk1.Compress(), user.Stake{Amount: 100, EndHeight: 1000})

	committees := committee.NewSet(p)
	hdr := ledger.ConsensusHeader{Round: 1, Iteration: 0}

	_, err := VerifyStepVotes(committees, hdr, []byte("seed"), nil, ledger.StepValidation,
		ledger.StepVotes{BitSet: 0}, ledger.Valid([32]byte{1}))

	assert.Error(t, err)
}

func TestVerifyStepVotesSkipsQuorumForNoQuorumEmptyBitset(t *testing.T) {
	p := user.NewProvisioners()
	_, pk1 := keyPair(t, 1)
	p.Add(pk1.Compress(), user.Stake{Amount: 100, EndHeight: 1000})

	committees := committee.NewSet(p)
	hdr := ledger.ConsensusHeader{Round: 1, Iteration: 0}

	result, err := VerifyStepVotes(committees, hdr, []byte("seed"), nil, ledger.StepValidation,
		ledger.StepVotes{BitSet: 0}, ledger.NoQuorum())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
}
