package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-chain/vireo/pkg/config"
	"github.com/vireo-chain/vireo/pkg/core/consensus/agreement"
	"github.com/vireo-chain/vireo/pkg/core/consensus/committee"
	"github.com/vireo-chain/vireo/pkg/core/consensus/phase"
	"github.com/vireo-chain/vireo/pkg/core/consensus/user"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
	"github.com/vireo-chain/vireo/pkg/crypto/bls"
)

// soloCaster signs every vote with a single provisioner's key. That
// provisioner's committee draw covers every slot (it is the only
// candidate), so its own vote alone crosses quorum.
type soloCaster struct {
	sk *bls.SecretKey
	pk []byte
}

func (c *soloCaster) CastVote(hdr ledger.ConsensusHeader, _ ledger.Seed, step ledger.StepName, vote ledger.Vote) ([48]byte, []byte, error) {
	msg := append(append(hdr.Signable(), byte(step)), vote.Hash[:]...)
	sig := bls.Sign(c.sk, msg)

	var out [48]byte
	copy(out[:], sig.Compress())
	return out, c.pk, nil
}

type fixedCandidateTask struct {
	pubKey [ledger.PubKeySize]byte
}

func (f *fixedCandidateTask) Propose(_ context.Context, ru phase.RoundUpdate, iteration uint8, _ []ledger.FailedIterationEntry) (ledger.Block, error) {
	hdr := ledger.Header{
		Version:         1,
		Height:          ru.Round,
		Timestamp:       ru.Timestamp + 1,
		PrevBlockHash:   ru.TipHash,
		Seed:            ru.Seed,
		GeneratorBLSPub: f.pubKey,
		Iteration:       iteration,
	}
	return ledger.Block{Header: hdr}, nil
}

func soloProvisioner(t *testing.T, seed byte) (*committee.Set, *bls.SecretKey, *bls.PublicKey) {
	t.Helper()

	ikm := make([]byte, 32)
	ikm[0] = seed
	sk, pk, err := bls.KeyGen(ikm)
	require.NoError(t, err)

	p := user.NewProvisioners()
	p.Add(pk.Compress(), user.Stake{Amount: 1000, EndHeight: 1_000_000})

	return committee.NewSet(p), sk, pk
}

func TestSupervisorRunReachesSuccess(t *testing.T) {
	committees, sk, pk := soloProvisioner(t, 7)
	caster := &soloCaster{sk: sk, pk: pk.Compress()}

	var pubKey [ledger.PubKeySize]byte
	copy(pubKey[:], caster.pk)

	var elapsedSteps []ledger.StepName
	sup := NewSupervisor(committees, caster, nil, func(step ledger.StepName, _ time.Duration) {
		elapsedSteps = append(elapsedSteps, step)
	})

	ru := phase.RoundUpdate{
		Round: 1,
		Seed:  ledger.Seed{1, 2, 3},
		BaseTimeouts: phase.TimeoutSet{
			ledger.StepProposal:     time.Second,
			ledger.StepValidation:   time.Second,
			ledger.StepRatification: time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome, err := sup.Run(ctx, ru, &fixedCandidateTask{pubKey: pubKey})
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.True(t, outcome.Attestation.Result.IsSuccess())
	assert.Equal(t, []ledger.StepName{ledger.StepProposal, ledger.StepValidation, ledger.StepRatification}, elapsedSteps)
	assert.False(t, sup.IsRunning())
}

// TestSupervisorRunExhaustsIterationsWithoutVotes runs with no VoteCaster
// (a listen-only node that never hears a matching vote) and a tight
// MaxIter, so every iteration's Validation step times out and the round
// reports failure rather than hanging on the outer context.
func TestSupervisorRunExhaustsIterationsWithoutVotes(t *testing.T) {
	orig := config.Get()
	defer config.Store(orig)

	cfg := config.Default()
	cfg.Consensus.MaxIter = 1
	config.Store(cfg)

	committees, _, pk := soloProvisioner(t, 9)

	var pubKey [ledger.PubKeySize]byte
	copy(pubKey[:], pk.Compress())

	sup := NewSupervisor(committees, nil, nil, nil)

	ru := phase.RoundUpdate{
		Round: 1,
		Seed:  ledger.Seed{1},
		BaseTimeouts: phase.TimeoutSet{
			ledger.StepProposal:     20 * time.Millisecond,
			ledger.StepValidation:   20 * time.Millisecond,
			ledger.StepRatification: 20 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome, err := sup.Run(ctx, ru, &fixedCandidateTask{pubKey: pubKey})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestSupervisorCollectVoteNoopWhenIdle(t *testing.T) {
	committees, sk, pk := soloProvisioner(t, 11)
	sup := NewSupervisor(committees, &soloCaster{sk: sk, pk: pk.Compress()}, nil, nil)

	assert.False(t, sup.IsRunning())
	assert.NotPanics(t, func() {
		sup.CollectVote(agreement.Event{Step: ledger.StepValidation, Vote: ledger.Valid([32]byte{1})})
	})
}
