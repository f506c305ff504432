package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSSEWriter_OpenSetsStreamingHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := newSSEWriter(rec)

	sink.Open()

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	require.True(t, rec.Flushed)
}

func TestSSEWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := newSSEWriter(rec)
	sink.Open()

	require.NoError(t, sink.Send("Hello"))
	require.NoError(t, sink.Send("[DONE]"))

	require.Equal(t, "data: Hello\n\ndata: [DONE]\n\n", rec.Body.String())
}
