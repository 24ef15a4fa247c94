package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRow struct {
	ID, From, To, Asset string
	Amount              uint64
}

type fakeRecorder struct {
	rows     []recordedRow
	failWith error
}

func (f *fakeRecorder) RecordTransfer(id, from, to, asset string, amount uint64, _ time.Time) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.rows = append(f.rows, recordedRow{ID: id, From: from, To: to, Asset: asset, Amount: amount})
	return nil
}

func TestJournalTransfer(t *testing.T) {
	rec := &fakeRecorder{}
	j, err := NewJournal(rec, nil)
	require.NoError(t, err)

	ref, err := j.Transfer(context.Background(), "settlement-escrow", "solver-one", "ckUSDC", 997_150)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, ref, rec.rows[0].ID)
	assert.Equal(t, "settlement-escrow", rec.rows[0].From)
	assert.Equal(t, "solver-one", rec.rows[0].To)
	assert.Equal(t, uint64(997_150), rec.rows[0].Amount)
}

func TestJournalTransferValidation(t *testing.T) {
	j, err := NewJournal(&fakeRecorder{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = j.Transfer(ctx, "a", "b", "ckUSDC", 0)
	assert.Error(t, err)
	_, err = j.Transfer(ctx, "", "b", "ckUSDC", 1)
	assert.Error(t, err)
}

func TestJournalTransferFailsWhenRowNotWritten(t *testing.T) {
	rec := &fakeRecorder{failWith: errors.New("disk full")}
	j, err := NewJournal(rec, nil)
	require.NoError(t, err)

	_, err = j.Transfer(context.Background(), "a", "b", "ckUSDC", 1)
	assert.Error(t, err)
}
