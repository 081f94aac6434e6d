package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sensiasoft/atomix/pkg/transport/async"
	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

func newTestService(t *testing.T, cluster string) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ClusterName = cluster
	cfg.SweepInterval = 10 * time.Millisecond
	svc := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, svc.Start())
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func TestServiceSendAndReceiveEcho(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	b.RegisterHandler("echo", func(ctx context.Context, req wire.Request) ([]byte, error) {
		return req.Payload, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := a.SendAndReceive(ctx, b.Address(), "echo", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), payload)
}

func TestServiceSendAndReceiveNoHandler(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := a.SendAndReceive(ctx, b.Address(), "missing", nil)
	require.True(t, errs.Is(err, errs.KindNoRemoteHandler))
}

func TestServiceSendAndReceiveHandlerError(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	b.RegisterHandler("boom", func(ctx context.Context, req wire.Request) ([]byte, error) {
		return nil, errors.New("kaboom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := a.SendAndReceive(ctx, b.Address(), "boom", nil)
	require.True(t, errs.Is(err, errs.KindRemoteHandlerFailure))
}

func TestServiceDifferentClustersFailHandshake(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-b")

	b.RegisterHandler("echo", func(ctx context.Context, req wire.Request) ([]byte, error) {
		return req.Payload, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := a.SendAndReceive(ctx, b.Address(), "echo", []byte("hi"))
	require.Error(t, err)
}

func TestServiceLoopbackSendAndReceive(t *testing.T) {
	a := newTestService(t, "cluster-a")
	a.RegisterHandler("self", func(ctx context.Context, req wire.Request) ([]byte, error) {
		return []byte("looped"), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payload, err := a.SendAndReceive(ctx, a.Address(), "self", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("looped"), payload)
}

func TestServiceLoopbackSendAsyncNoHandlerIsSilentlyDropped(t *testing.T) {
	a := newTestService(t, "cluster-a")

	future := a.SendAsync(context.Background(), a.Address(), "missing", nil)
	_, err := future.Wait(context.Background())
	require.NoError(t, err, "SendAsync only reports write failures, not handler outcomes")
}

func TestServiceConsumerRunsButCallerDoesNotWaitOnIt(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	ran := make(chan struct{}, 1)
	b.RegisterConsumer("fanout", func(ctx context.Context, req wire.Request) {
		ran <- struct{}{}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	future := a.SendAsync(ctx, b.Address(), "fanout", []byte("x"))
	_, err := future.Wait(ctx)
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("consumer never ran")
	}
}

func TestServiceAsyncHandler(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	b.RegisterAsyncHandler("delayed", func(ctx context.Context, req wire.Request) async.Future[[]byte] {
		f, complete := async.NewFuture[[]byte]()
		go func() {
			time.Sleep(20 * time.Millisecond)
			complete(req.Payload, nil)
		}()
		return f
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := a.SendAndReceive(ctx, b.Address(), "delayed", []byte("later"))
	require.NoError(t, err)
	require.Equal(t, []byte("later"), payload)
}

func TestServiceStaticTimeout(t *testing.T) {
	a := newTestService(t, "cluster-a")
	b := newTestService(t, "cluster-a")

	b.RegisterHandler("slow", func(ctx context.Context, req wire.Request) ([]byte, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.SendAndReceive(ctx, b.Address(), "slow", nil)
	require.Error(t, err)
}
