package rpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthd-ng/internal/charging"
)

type fakeService struct {
	mu      sync.Mutex
	enabled bool
	getErr  error
	setErr  error
	sets    atomic.Int64
	// getDelay stalls GetEnabled to make callers time out.
	getDelay time.Duration
}

func (f *fakeService) GetEnabled() (bool, error) {
	time.Sleep(f.getDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.getErr
}

func (f *fakeService) SetEnabled(v bool) error {
	f.sets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled = v
	return nil
}

// shortSocketPath keeps the path under the unix socket length limit.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hrpc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "health.sock")
}

func startServer(t *testing.T, svc ChargingService) (string, *Server) {
	t.Helper()
	sock := shortSocketPath(t)
	logger, _ := test.NewNullLogger()
	srv := NewServer(svc, ServerConfig{Socket: sock, Logger: logger})
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("Serve did not stop")
		}
	})
	return sock, srv
}

func dialClient(t *testing.T, sock string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, sock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientServer_GetSet(t *testing.T) {
	svc := &fakeService{}
	sock, _ := startServer(t, svc)
	c := dialClient(t, sock)
	ctx := context.Background()

	got, err := c.GetChargingEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, c.SetChargingEnabled(ctx, true))
	got, err = c.GetChargingEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestClientServer_ErrorKindsSurviveTheWire(t *testing.T) {
	svc := &fakeService{
		getErr: charging.ErrUnsupportedOperation,
		setErr: &charging.Error{Kind: charging.KindIllegalState, Op: "set", Msg: "failed to write node", Detail: "EACCES: permission denied"},
	}
	sock, _ := startServer(t, svc)
	c := dialClient(t, sock)
	ctx := context.Background()

	_, err := c.GetChargingEnabled(ctx)
	assert.ErrorIs(t, err, charging.ErrUnsupportedOperation)

	err = c.SetChargingEnabled(ctx, true)
	assert.ErrorIs(t, err, charging.ErrIllegalState)
	assert.Contains(t, err.Error(), "EACCES")
}

func TestServer_BadRequests(t *testing.T) {
	sock, _ := startServer(t, &fakeService{})
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()
	fr := NewFrameReader(conn, 0)
	fw := NewFrameWriter(conn, 0)

	roundTrip := func(data []byte) *Response {
		t.Helper()
		require.NoError(t, fw.WriteFrame(data))
		frame, err := fr.ReadFrame()
		require.NoError(t, err)
		resp, err := DecodeResponse(frame)
		require.NoError(t, err)
		return resp
	}

	data, err := EncodeRequest(&Request{ID: 1, Method: Method(99)})
	require.NoError(t, err)
	resp := roundTrip(data)
	assert.Equal(t, StatusBadRequest, resp.Status)
	assert.Equal(t, uint32(1), resp.ID)

	data, err = EncodeRequest(&Request{ID: 2, Method: MethodSetChargingEnabled})
	require.NoError(t, err)
	resp = roundTrip(data)
	assert.Equal(t, StatusBadRequest, resp.Status)
	assert.Equal(t, "missing enabled argument", resp.Detail)

	resp = roundTrip([]byte{0xff})
	assert.Equal(t, StatusBadRequest, resp.Status)

	// The connection stays usable after bad requests.
	data, err = EncodeRequest(&Request{ID: 3, Method: MethodGetChargingEnabled})
	require.NoError(t, err)
	resp = roundTrip(data)
	assert.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Enabled)
}

func TestServer_ConcurrentClients(t *testing.T) {
	svc := &fakeService{}
	sock, _ := startServer(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := dialClient(t, sock)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := c.SetChargingEnabled(context.Background(), (i+j)%2 == 0); err != nil {
					t.Errorf("set: %v", err)
					return
				}
				if _, err := c.GetChargingEnabled(context.Background()); err != nil {
					t.Errorf("get: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(160), svc.sets.Load())
}

func TestServer_StopsOnCancelWithOpenConnections(t *testing.T) {
	sock := shortSocketPath(t)
	logger, _ := test.NewNullLogger()
	srv := NewServer(&fakeService{}, ServerConfig{Socket: sock, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err), "socket left behind: %v", err)
}

func TestServer_ServeAgainAfterStop(t *testing.T) {
	sock := shortSocketPath(t)
	logger, _ := test.NewNullLogger()
	srv := NewServer(&fakeService{enabled: true}, ServerConfig{Socket: sock, Logger: logger})

	for round := 0; round < 3; round++ {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Serve(ctx) }()
		require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)

		c := dialClient(t, sock)
		got, err := c.GetChargingEnabled(context.Background())
		if err != nil || !got {
			t.Fatalf("round %d: got=%v err=%v want true", round, got, err)
		}
		require.NoError(t, c.Close())

		cancel()
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: Serve did not return", round)
		}
	}
}

func TestServer_ListenReplacesStaleSocket(t *testing.T) {
	sock := shortSocketPath(t)
	stale, err := net.Listen("unix", sock)
	require.NoError(t, err)
	// Leave the file behind the way a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	logger, _ := test.NewNullLogger()
	srv := NewServer(&fakeService{}, ServerConfig{Socket: sock, Mode: 0o600, Logger: logger})
	require.NoError(t, srv.Listen())
	st, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, srv.Serve(ctx), context.Canceled)
}

func TestServer_ListenRefusesRegularFile(t *testing.T) {
	sock := shortSocketPath(t)
	require.NoError(t, os.WriteFile(sock, []byte("x"), 0o644))
	srv := NewServer(&fakeService{}, ServerConfig{Socket: sock})
	assert.Error(t, srv.Listen())
}

func TestClient_DeadlineExceeded(t *testing.T) {
	sock := shortSocketPath(t)
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		// Accept and never answer.
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(time.Second)
		}
	}()

	c := dialClient(t, sock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetChargingEnabled(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_TimedOutCallClosesClient(t *testing.T) {
	svc := &fakeService{enabled: true, getDelay: 200 * time.Millisecond}
	sock, _ := startServer(t, svc)
	c := dialClient(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetChargingEnabled(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The late reply must never be taken as the answer to a later call.
	_, err = c.GetChargingEnabled(context.Background())
	require.ErrorIs(t, err, ErrClientClosed)
	err = c.SetChargingEnabled(context.Background(), false)
	require.ErrorIs(t, err, ErrClientClosed)
	assert.Zero(t, svc.sets.Load())

	// A fresh connection works.
	c2 := dialClient(t, sock)
	got, err := c2.GetChargingEnabled(context.Background())
	require.NoError(t, err)
	assert.True(t, got)
	require.NoError(t, c.Close())
}

func TestEndToEnd_WithControl(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/tmp/b", []byte("0\n"), 0o644))
	logger, _ := test.NewNullLogger()
	ctl, err := charging.New(charging.Config{
		Nodes: charging.Registry{
			{Path: "/tmp/a", TrueToken: "1", FalseToken: "0"},
			{Path: "/tmp/b", TrueToken: "1", FalseToken: "0"},
		},
		IO:     charging.NewFileIO(fs),
		Logger: logger,
	})
	require.NoError(t, err)

	sock, _ := startServer(t, ctl)
	c := dialClient(t, sock)
	ctx := context.Background()

	require.NoError(t, c.SetChargingEnabled(ctx, true))
	got, err := c.GetChargingEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, fs.Remove("/tmp/b"))
	_, err = c.GetChargingEnabled(ctx)
	assert.ErrorIs(t, err, charging.ErrIllegalState)
}
