package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGeneratesIDWhenAbsent(t *testing.T) {
	table := New(0)

	id, completion, err := table.Insert(Request{Action: "math.add", NodeID: "B"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NotNil(t, completion)
	assert.Equal(t, 1, table.Len())
}

func TestCompleteSuccessResolvesAndRemoves(t *testing.T) {
	table := New(0)
	id, completion, err := table.Insert(Request{ID: "r1", Action: "math.add", NodeID: "B"})
	require.NoError(t, err)

	table.CompleteSuccess(id, 5)

	result := completion.Wait()
	assert.NoError(t, result.Err)
	assert.Equal(t, 5, result.Data)
	assert.Equal(t, 0, table.Len())
}

func TestCompleteFailureRejectsAndRemoves(t *testing.T) {
	table := New(0)
	id, completion, err := table.Insert(Request{ID: "r2", Action: "math.add", NodeID: "B"})
	require.NoError(t, err)

	remoteErr := &ErrRequestRejected{Action: "math.add", NodeID: "B"}
	table.CompleteFailure(id, remoteErr)

	result := completion.Wait()
	assert.Error(t, result.Err)
	assert.Equal(t, 0, table.Len())
}

func TestCancelByNodeSweepsOnlyMatchingEntries(t *testing.T) {
	table := New(0)
	_, cB, err := table.Insert(Request{ID: "r3", Action: "math.add", NodeID: "C"})
	require.NoError(t, err)
	_, cD, err := table.Insert(Request{ID: "r4", Action: "math.add", NodeID: "D"})
	require.NoError(t, err)

	n := table.CancelByNode("C")
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, table.Len())

	result := cB.Wait()
	require.Error(t, result.Err)
	var rejected *ErrRequestRejected
	assert.ErrorAs(t, result.Err, &rejected)
	assert.Equal(t, "C", rejected.NodeID)

	// D was untouched; completing it still works normally.
	table.CompleteSuccess("r4", "ok")
	dResult := cD.Wait()
	assert.NoError(t, dResult.Err)
}

func TestLateResponseAfterSweepIsNoop(t *testing.T) {
	// S3: request id "r3" targeted at "C"; DISCONNECT from "C" sweeps it; a later
	// RESPONSE for "r3" must be a silent no-op (table miss), not a second delivery.
	table := New(0)
	id, completion, err := table.Insert(Request{ID: "r3", Action: "math.add", NodeID: "C"})
	require.NoError(t, err)

	table.CancelByNode("C")
	firstResult := completion.Wait()
	require.Error(t, firstResult.Err)

	// A RESPONSE for r3 arrives after the sweep: CompleteSuccess must be a no-op.
	assert.NotPanics(t, func() {
		table.CompleteSuccess(id, "late-data")
	})
	assert.Equal(t, 0, table.Len())
}

func TestInsertRejectsAtCapacity(t *testing.T) {
	// S6: maxQueueSize=2, two pendings in flight, third request call rejected.
	table := New(2)

	_, _, err := table.Insert(Request{ID: "r1", Action: "a", NodeID: "B"})
	require.NoError(t, err)
	_, _, err = table.Insert(Request{ID: "r2", Action: "a", NodeID: "B"})
	require.NoError(t, err)

	_, _, err = table.Insert(Request{ID: "r3", Action: "a", NodeID: "B"})
	require.Error(t, err)

	var qf *ErrQueueFull
	require.ErrorAs(t, err, &qf)
	assert.Equal(t, 2, qf.Size)
	assert.Equal(t, 2, qf.Limit)
}

func TestRemoveIsIdempotent(t *testing.T) {
	table := New(0)
	id, _, err := table.Insert(Request{ID: "r1", Action: "a", NodeID: "B"})
	require.NoError(t, err)

	table.Remove(id)
	assert.Equal(t, 0, table.Len())

	assert.NotPanics(t, func() {
		table.Remove(id)
	})
}

func TestCompleteSuccessIsExactlyOnce(t *testing.T) {
	table := New(0)
	id, completion, err := table.Insert(Request{ID: "r1", Action: "a", NodeID: "B"})
	require.NoError(t, err)

	table.CompleteSuccess(id, "first")
	// A second completion attempt for the same id is a table miss; the channel
	// must still only ever have delivered once.
	table.CompleteSuccess(id, "second")

	result := completion.Wait()
	assert.Equal(t, "first", result.Data)
}
