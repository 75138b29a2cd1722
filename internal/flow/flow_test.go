package flow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/policast/internal/domain"
)

func TestHappyPathWithApproval(t *testing.T) {
	m := New()
	require.NoError(t, m.Fire(Select))
	require.NoError(t, m.SetIntent(domain.PurchaseIntent{MarketID: 1, ShareQuantity: big.NewInt(5)}))
	require.NoError(t, m.Fire(SubmitWithApproval))
	assert.True(t, m.Submitted())
	require.NoError(t, m.Fire(ApprovalConfirmed))
	require.NoError(t, m.Fire(Succeed))

	assert.Equal(t, Success, m.State())
	assert.Equal(t, []State{Idle, AmountEntry, Approving, Confirming, Success}, m.History())
	require.NoError(t, m.Fire(Reset))
	assert.Nil(t, m.Intent())
}

func TestCancelOnlyBeforeSubmit(t *testing.T) {
	m := New()
	require.NoError(t, m.Fire(Select))
	require.NoError(t, m.Fire(Cancel))
	assert.Equal(t, Idle, m.State())

	require.NoError(t, m.Fire(Select))
	require.NoError(t, m.Fire(SubmitDirect))
	err := m.Fire(Cancel)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Confirming, m.State())
}

func TestPartialSuccessKeepsIntentForRetry(t *testing.T) {
	m := New()
	require.NoError(t, m.Fire(Select))
	require.NoError(t, m.SetIntent(domain.PurchaseIntent{ID: "i-1"}))
	require.NoError(t, m.Fire(SubmitWithApproval))
	require.NoError(t, m.Fire(PartialFail))

	assert.Equal(t, PartialSuccess, m.State())
	require.NotNil(t, m.Intent())
	assert.Equal(t, "i-1", m.Intent().ID)

	require.NoError(t, m.Fire(Retry))
	require.NoError(t, m.Fire(Succeed))
	assert.Equal(t, Success, m.State())
}

func TestFailRecordsErrorAndDiscardsIntent(t *testing.T) {
	m := New()
	require.NoError(t, m.Fire(Select))
	require.NoError(t, m.SetIntent(domain.PurchaseIntent{ID: "i-2"}))
	require.NoError(t, m.Fire(SubmitDirect))

	boom := errors.New("reverted")
	require.NoError(t, m.FailWith(boom))
	assert.Equal(t, Idle, m.State())
	assert.Nil(t, m.Intent())
	assert.Equal(t, boom, m.Err())

	require.NoError(t, m.Fire(Select))
	assert.NoError(t, m.Err(), "a new selection clears the previous error")
}

func TestInvalidTransitions(t *testing.T) {
	m := New()
	for _, ev := range []Event{Cancel, SubmitDirect, Succeed, Retry, Reset, Fail} {
		assert.ErrorIs(t, m.Fire(ev), ErrInvalidTransition, ev)
	}
	assert.Equal(t, Idle, m.State())
	assert.ErrorIs(t, m.SetIntent(domain.PurchaseIntent{}), ErrInvalidTransition)
	assert.ErrorIs(t, m.FailWith(errors.New("x")), ErrInvalidTransition)
}

func TestRestorePartialSuccess(t *testing.T) {
	m := Restore(PartialSuccess, &domain.PurchaseIntent{ID: "i-3"})
	assert.Equal(t, PartialSuccess, m.State())
	require.NoError(t, m.Fire(Retry))
	require.NoError(t, m.Fire(PartialFail))
	assert.Equal(t, PartialSuccess, m.State(), "a failed retry stays retryable")

	assert.Equal(t, Idle, Restore(Success, nil).State())
}
