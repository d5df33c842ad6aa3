package report_test

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/foucault/nvfancontrol/internal/backend"
	"github.com/foucault/nvfancontrol/internal/control"
	"github.com/foucault/nvfancontrol/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []control.Snapshot

func (s staticSource) Snapshot() []control.Snapshot {
	return s
}

func testSnapshots() []control.Snapshot {
	return []control.Snapshot{
		{
			GPU:         0,
			Cooler:      0,
			Temperature: 45,
			Speed:       35,
			RPM:         control.RPMUnknown,
			Mode:        backend.ModeAutomatic,
		},
		{
			GPU:         0,
			Cooler:      1,
			Temperature: 45,
			Speed:       40,
			RPM:         1200,
			Mode:        backend.ModeManual,
		},
	}
}

func TestWriteEmitsSingleJSONLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, testSnapshots()))

	want := `[{"gpu":0,"cooler":0,"temperature":45,"speed":35,"rpm":null,"mode":"auto"},` +
		`{"gpu":0,"cooler":1,"temperature":45,"speed":40,"rpm":1200,"mode":"manual"}]` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteEmptyRegistry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestServerPushesSnapshotAndCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := report.NewServer(staticSource(testSnapshots()), 0)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, ln)
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"temperature":45`)
	assert.Contains(t, line, `"rpm":null`)

	// The server closes the connection after the single payload.
	_, err = reader.ReadByte()
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

func TestServerSurvivesClientDisconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := report.NewServer(staticSource(testSnapshots()), 0)
	go srv.Serve(ctx, ln)

	// Connect and immediately hang up, twice.
	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		require.NoError(t, err)
		conn.Close()
	}

	// A well-behaved client still gets its payload afterwards.
	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"gpu":0`)
}
