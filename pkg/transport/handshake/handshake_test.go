package handshake

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sensiasoft/atomix/pkg/transport/errs"
	"github.com/sensiasoft/atomix/pkg/transport/wire"
)

func TestPerformNegotiatesLatest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	preamble := ComputePreamble("c1")

	type outcome struct {
		version wire.Version
		err     error
	}
	clientCh := make(chan outcome, 1)
	serverCh := make(chan outcome, 1)

	go func() {
		v, _, err := Perform(client, RoleClient, preamble, wire.Supported)
		clientCh <- outcome{v, err}
	}()
	go func() {
		v, _, err := Perform(server, RoleServer, preamble, wire.Supported)
		serverCh <- outcome{v, err}
	}()

	co := <-clientCh
	so := <-serverCh
	require.NoError(t, co.err)
	require.NoError(t, so.err)
	require.Equal(t, wire.Latest, co.version)
	require.Equal(t, wire.Latest, so.version)
}

func TestPerformRejectsPreambleMismatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientCh := make(chan error, 1)
	serverCh := make(chan error, 1)

	go func() {
		_, _, err := Perform(client, RoleClient, ComputePreamble("c1"), wire.Supported)
		clientCh <- err
	}()
	go func() {
		_, _, err := Perform(server, RoleServer, ComputePreamble("c2"), wire.Supported)
		serverCh <- err
	}()

	require.True(t, errs.Is(<-clientCh, errs.KindProtocolException))
	require.True(t, errs.Is(<-serverCh, errs.KindProtocolException))
}

func TestPerformRejectsUnknownVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	preamble := ComputePreamble("c1")
	clientCh := make(chan error, 1)
	serverCh := make(chan error, 1)

	go func() {
		_, _, err := Perform(client, RoleClient, preamble, []wire.Version{wire.Version(99)})
		clientCh <- err
	}()
	go func() {
		_, _, err := Perform(server, RoleServer, preamble, []wire.Version{wire.Version(5)})
		serverCh <- err
	}()

	require.True(t, errs.Is(<-serverCh, errs.KindProtocolException))
	require.Error(t, <-clientCh)
}

func TestPerformClientRejectsVersionItDoesNotKnow(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	preamble := ComputePreamble("c1")
	clientCh := make(chan error, 1)
	serverCh := make(chan error, 1)

	// The client always offers wire.Latest (V1), so the server negotiates
	// V1 cleanly. The client's own supported list holds only version 77,
	// so the V1 the server sends back lands in the client's
	// unknown-version branch.
	go func() {
		_, _, err := Perform(client, RoleClient, preamble, []wire.Version{wire.Version(77)})
		clientCh <- err
	}()
	go func() {
		_, _, err := Perform(server, RoleServer, preamble, wire.Supported)
		serverCh <- err
	}()

	require.NoError(t, <-serverCh)
	require.True(t, errs.Is(<-clientCh, errs.KindProtocolException))
}
