package callback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

func TestTableCompleteResolvesPending(t *testing.T) {
	table := NewTable()

	type result struct {
		payload []byte
		status  wire.Status
		err     error
	}
	done := make(chan result, 1)
	table.Register(1, "echo", time.Second, func(payload []byte, status wire.Status, err error) {
		done <- result{payload, status, err}
	})

	require.Equal(t, 1, table.Len())
	require.True(t, table.Complete(1, []byte("pong"), wire.StatusOK))

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, []byte("pong"), r.payload)
	require.Equal(t, wire.StatusOK, r.status)
	require.Equal(t, 0, table.Len())
}

func TestTableCompleteUnknownIDReturnsFalse(t *testing.T) {
	table := NewTable()
	require.False(t, table.Complete(99, nil, wire.StatusOK))
}

func TestTableFailResolvesWithError(t *testing.T) {
	table := NewTable()
	done := make(chan error, 1)
	table.Register(1, "echo", time.Second, func(_ []byte, _ wire.Status, err error) {
		done <- err
	})

	require.True(t, table.Fail(1, errs.New(errs.KindConnectionClosed, "closed")))
	require.True(t, errs.Is(<-done, errs.KindConnectionClosed))
}

func TestTableCloseAllFailsEveryPending(t *testing.T) {
	table := NewTable()
	n := 5
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		table.Register(uint64(i), "echo", time.Second, func(_ []byte, _ wire.Status, err error) {
			done <- err
		})
	}
	require.Equal(t, n, table.Len())

	table.CloseAll(errs.New(errs.KindConnectionClosed, "closed"))
	require.Equal(t, 0, table.Len())
	for i := 0; i < n; i++ {
		require.True(t, errs.Is(<-done, errs.KindConnectionClosed))
	}
}

func TestTableSweepFailsExpiredRequests(t *testing.T) {
	table := NewTable()
	done := make(chan error, 1)
	table.Register(1, "echo", time.Millisecond, func(_ []byte, _ wire.Status, err error) {
		done <- err
	})

	time.Sleep(5 * time.Millisecond)
	expired := table.Sweep()
	require.Equal(t, []Expired{{ID: 1, Subject: "echo"}}, expired)
	require.True(t, errs.Is(<-done, errs.KindTimeout))
	require.Equal(t, 0, table.Len())
}

func TestTableSweepLeavesFreshRequestsPending(t *testing.T) {
	table := NewTable()
	table.Register(1, "echo", time.Hour, func(_ []byte, _ wire.Status, _ error) {})

	expired := table.Sweep()
	require.Empty(t, expired)
	require.Equal(t, 1, table.Len())
}

func TestTableSweepAdaptiveTimeoutFiresAfterMaxAdaptiveTimeout(t *testing.T) {
	table := NewTable()
	done := make(chan error, 1)
	table.Register(1, "echo", 0, func(_ []byte, _ wire.Status, err error) {
		done <- err
	})
	table.pendingM[1].sentAt = time.Now().Add(-(maxAdaptiveTimeout + time.Second))

	expired := table.Sweep()
	require.Equal(t, []Expired{{ID: 1, Subject: "echo"}}, expired)
	require.True(t, errs.Is(<-done, errs.KindTimeout))
}

func TestTableSweepAdaptiveTimeoutLeavesFreshRequestPending(t *testing.T) {
	table := NewTable()
	table.Register(1, "echo", 0, func(_ []byte, _ wire.Status, _ error) {})

	expired := table.Sweep()
	require.Empty(t, expired)
	require.Equal(t, 1, table.Len())
}

func TestRequestMonitorPhiBranchIsUnreachable(t *testing.T) {
	m := newRequestMonitor(time.Now())
	now := time.Now()
	for i := 0; i < sampleWindowSize+5; i++ {
		m.addReplyTime(time.Millisecond, now)
		m.replyCount = windowUpdateThreshold
		m.lastUpdate = now.Add(-2 * windowUpdatePeriod)
		m.addReplyTime(time.Millisecond, now)
	}

	require.Len(t, m.samples, sampleWindowSize)
	require.False(t, m.isTimedOut(time.Hour))
}
