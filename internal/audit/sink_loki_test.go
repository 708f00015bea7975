package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLokiSink(url string) *LokiSink {
	return NewLokiSink(LokiOptions{
		URL:        url,
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond, // в тестах бэкофф не должен тянуть время
	}, zap.NewNop())
}

func TestLokiRetriesServerErrorsThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// 500, 500, 200 — ровно три попытки и успех
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestLokiSink(srv.URL).Write(context.Background(), rec("t-1"))

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestLokiExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestLokiSink(srv.URL).Write(context.Background(), rec("t-1"))

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load(), "exactly max_retries attempts")
}

func TestLokiClientErrorFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestLokiSink(srv.URL).Write(context.Background(), rec("t-1"))

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load(), "4xx is not transient, no retries")
}

func TestLokiRetriesNetworkErrors(t *testing.T) {
	// Сервер сразу закрыт — каждая попытка падает на сети
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	err := newTestLokiSink(srv.URL).Write(context.Background(), rec("t-1"))
	require.Error(t, err)
}

func TestLokiPushWireFormat(t *testing.T) {
	created := time.Date(2026, 8, 28, 12, 0, 0, 123456789, time.UTC)
	var captured lokiPush

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	record := Record{
		TraceID:    "trace-9",
		UserID:     "user-7",
		Input:      "list C:\\",
		DurationMs: 17,
		CreatedAt:  created,
	}
	require.NoError(t, newTestLokiSink(srv.URL).Write(context.Background(), record))

	require.Len(t, captured.Streams, 1)
	stream := captured.Streams[0]
	assert.Equal(t, map[string]string{
		"job":      "audit",
		"type":     "ai_query",
		"user_id":  "user-7",
		"trace_id": "trace-9",
	}, stream.Stream)

	require.Len(t, stream.Values, 1)
	assert.Equal(t, strconv.FormatInt(created.UnixNano(), 10), stream.Values[0][0])

	// Строка лога — полная запись в JSON
	var line Record
	require.NoError(t, json.Unmarshal([]byte(stream.Values[0][1]), &line))
	assert.Equal(t, record.TraceID, line.TraceID)
	assert.Equal(t, record.Input, line.Input)
}
