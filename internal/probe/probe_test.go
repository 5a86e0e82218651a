package probe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProber_Measure(t *testing.T) {
	payload := make([]byte, 256*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	p := New(server.URL, 5*time.Second, testLogger())
	result, err := p.Measure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), result.Bytes)
	assert.Greater(t, result.Mbps, 0.0)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestProber_MeasureRejectsTinyObjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("too small"))
	}))
	defer server.Close()

	p := New(server.URL, 5*time.Second, testLogger())
	_, err := p.Measure(context.Background())
	assert.Error(t, err)
}

func TestProber_MeasureWithoutURL(t *testing.T) {
	p := New("", time.Second, testLogger())
	_, err := p.Measure(context.Background())
	assert.ErrorIs(t, err, ErrNoURL)
}
