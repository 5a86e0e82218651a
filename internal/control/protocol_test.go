package control

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/session"
	"github.com/jmylchreest/vodarr/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	server   *Server
	catalog  *library.Catalog
	registry *session.Registry
	addr     string
}

// startTestServer runs a full control server over loopback: catalog from
// the given filenames, session registry, and a dispatcher on ephemeral
// ports.
func startTestServer(t *testing.T, files ...string) *testServer {
	t.Helper()

	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Repeat("x", 2048)), 0o644))
	}

	logger := testLogger()
	catalog := library.New(dir, logger)
	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)

	registry := session.NewRegistry(logger)

	streamCfg := stream.DefaultConfig()
	streamCfg.TCPAddr = "127.0.0.1:0"
	streamCfg.UDPAddr = "127.0.0.1:0"
	streamCfg.RTPAddr = "127.0.0.1:0"
	streamCfg.UDPPacing = time.Millisecond
	streamCfg.RTPPacing = time.Millisecond
	dispatcher, err := stream.NewDispatcher(streamCfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { dispatcher.Close() })

	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, catalog, registry, dispatcher, logger)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testServer{
		server:   srv,
		catalog:  catalog,
		registry: registry,
		addr:     srv.Addr().String(),
	}
}

func dialTestClient(t *testing.T, ts *testServer) *Client {
	t.Helper()
	client, err := Dial(context.Background(), ts.addr, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestProtocol_ConnectIssuesClientID(t *testing.T) {
	ts := startTestServer(t)
	client := dialTestClient(t, ts)

	id, err := client.Connect(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, ts.registry.Len())

	sess, err := ts.registry.Get(id)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Hostname)
}

func TestProtocol_ListContainersEmptyCatalogReturnsStaticSet(t *testing.T) {
	ts := startTestServer(t)
	client := dialTestClient(t, ts)

	containers, err := client.ListContainers(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, media.Containers(), containers)
}

func TestProtocol_ListVideosFiltersAndOrders(t *testing.T) {
	ts := startTestServer(t,
		"Forrest_Gump-240p.mkv",
		"Forrest_Gump-360p.mkv",
		"Forrest_Gump-480p.mkv",
		"Forrest_Gump-720p.mkv",
		"The_Godfather-240p.mkv",
		"The_Godfather-360p.mkv",
		"The_Godfather-480p.mkv",
		"The_Godfather-480p.mp4",
	)
	client := dialTestClient(t, ts)

	// 5.5 Mbps puts the ceiling at 480p: 720p variants must not appear.
	videos, err := client.ListVideos(context.Background(), media.ContainerMKV, 5.5)
	require.NoError(t, err)

	var got []string
	for _, v := range videos {
		assert.Equal(t, media.ContainerMKV, v.Container)
		got = append(got, v.Title+"-"+string(v.Resolution))
	}
	assert.Equal(t, []string{
		"Forrest_Gump-480p",
		"Forrest_Gump-360p",
		"Forrest_Gump-240p",
		"The_Godfather-480p",
		"The_Godfather-360p",
		"The_Godfather-240p",
	}, got)

	for _, v := range videos {
		assert.True(t, strings.HasPrefix(v.URL, "file://"))
	}
}

func TestProtocol_StartStreamNotFound(t *testing.T) {
	ts := startTestServer(t, "Forrest_Gump-480p.mkv")
	client := dialTestClient(t, ts)

	_, err := client.Connect(context.Background())
	require.NoError(t, err)

	_, err = client.StartStream(context.Background(),
		"Forrest_Gump", media.Resolution1080p, media.ContainerMKV, media.TransportTCP, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProtocol_StartStreamRequiresSession(t *testing.T) {
	ts := startTestServer(t, "Forrest_Gump-480p.mkv")
	client := dialTestClient(t, ts)

	_, err := client.StartStream(context.Background(),
		"Forrest_Gump", media.Resolution480p, media.ContainerMKV, media.TransportTCP, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestProtocol_StartStreamUDPDeliversToReceiverPort(t *testing.T) {
	ts := startTestServer(t, "The_Godfather-480p.mkv")
	client := dialTestClient(t, ts)

	_, err := client.Connect(context.Background())
	require.NoError(t, err)

	receiver, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer receiver.Close()
	port := receiver.LocalAddr().(*net.UDPAddr).Port

	endpoint, err := client.StartStream(context.Background(),
		"The_Godfather", media.Resolution480p, media.ContainerMKV, media.TransportUDP, port)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(endpoint, "udp://127.0.0.1:"), endpoint)

	buf := make([]byte, 64*1024)
	require.NoError(t, receiver.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := receiver.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, 2048, n)
}

func TestProtocol_SecondStartStreamRepliesBusy(t *testing.T) {
	ts := startTestServer(t, "Forrest_Gump-480p.mkv")
	client := dialTestClient(t, ts)

	id, err := client.Connect(context.Background())
	require.NoError(t, err)

	// Never dialed, so the TCP sender stays blocked in accept and the
	// stream remains active.
	_, err = client.StartStream(context.Background(),
		"Forrest_Gump", media.Resolution480p, media.ContainerMKV, media.TransportTCP, 0)
	require.NoError(t, err)

	_, err = client.StartStream(context.Background(),
		"Forrest_Gump", media.Resolution480p, media.ContainerMKV, media.TransportTCP, 0)
	assert.ErrorIs(t, err, ErrBusy)

	// The first stream is untouched.
	sess, err := ts.registry.Get(id)
	require.NoError(t, err)
	assert.False(t, sess.Stream().State().IsTerminal())
}

func TestProtocol_UnknownKindKeepsChannelOpen(t *testing.T) {
	ts := startTestServer(t)

	conn, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	defer conn.Close()

	data, err := Encode(Kind("SELF_DESTRUCT"), nil)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, data))

	reply, err := ReadFrame(conn)
	require.NoError(t, err)
	msg, err := Decode(reply)
	require.NoError(t, err)
	assert.Equal(t, KindBadRequest, msg.Kind)

	// The channel still serves well-formed requests.
	data, err = Encode(KindListContainers, nil)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, data))

	reply, err = ReadFrame(conn)
	require.NoError(t, err)
	msg, err = Decode(reply)
	require.NoError(t, err)
	assert.Equal(t, KindContainers, msg.Kind)
}

func TestProtocol_AbruptCloseCancelsActiveStream(t *testing.T) {
	ts := startTestServer(t, "Forrest_Gump-480p.mkv")
	client := dialTestClient(t, ts)

	id, err := client.Connect(context.Background())
	require.NoError(t, err)

	_, err = client.StartStream(context.Background(),
		"Forrest_Gump", media.Resolution480p, media.ContainerMKV, media.TransportTCP, 0)
	require.NoError(t, err)

	sess, err := ts.registry.Get(id)
	require.NoError(t, err)
	handle := sess.Stream()
	require.NotNil(t, handle)

	// Drop the control channel without DISCONNECT.
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return handle.State() == session.StreamAborted
	}, 2*time.Second, 10*time.Millisecond)

	_, err = ts.registry.Get(id)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestProtocol_DisconnectRepliesOK(t *testing.T) {
	ts := startTestServer(t)
	client := dialTestClient(t, ts)

	_, err := client.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.Disconnect(context.Background()))
	assert.Equal(t, 0, ts.registry.Len())
}
