package phase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vireo-chain/vireo/pkg/core/consensus/msghandler"
	"github.com/vireo-chain/vireo/pkg/core/data/ledger"
)

func TestAverageElapsedTimeClampsToMin(t *testing.T) {
	avg := NewAverageElapsedTime(3)
	assert.Equal(t, time.Duration(0), avg.Average())
	assert.Greater(t, avg.Clamped(), time.Duration(0))
}

func TestAverageElapsedTimeObserve(t *testing.T) {
	avg := NewAverageElapsedTime(2)
	avg.Observe(2 * time.Second)
	avg.Observe(4 * time.Second)
	assert.Equal(t, 3*time.Second, avg.Average())
}

func TestDoubleOnTimeoutCaps(t *testing.T) {
	doubled := DoubleOnTimeout(time.Hour)
	assert.LessOrEqual(t, doubled, 40*time.Second)
}

func TestRunStepAdvancesOnReady(t *testing.T) {
	m := NewMachine(0, DefaultTimeoutSet())

	_, next, err := m.RunStep(context.Background(), StateAwaitProposal, func(ctx context.Context) (msghandler.Output, error) {
		return msghandler.Ready(ledger.Valid([32]byte{1})), nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateAwaitValidation, next)
}

func TestRunStepTimesOut(t *testing.T) {
	timeouts := TimeoutSet{ledger.StepProposal: 10 * time.Millisecond}
	m := NewMachine(0, timeouts)

	_, next, err := m.RunStep(context.Background(), StateAwaitProposal, func(ctx context.Context) (msghandler.Output, error) {
		<-ctx.Done()
		return msghandler.Pending(), nil
	})

	require.NoError(t, err)
	assert.Equal(t, StateTimeout, next)
}
