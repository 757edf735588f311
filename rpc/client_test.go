package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeBackendMessage_StripsNewlines(t *testing.T) {
	require.Equal(t, "line one line two", sanitizeBackendMessage("line one\nline two"))
	require.Equal(t, "a b c", sanitizeBackendMessage("a\r\nb\nc"))
	require.Equal(t, "no newlines", sanitizeBackendMessage("no newlines"))
}

func TestExtractStatus_Success(t *testing.T) {
	res := map[string]interface{}{
		"status": map[string]interface{}{
			"extruder": map[string]interface{}{"temperature": 200.0},
		},
	}
	status, err := extractStatus(res)
	require.NoError(t, err)
	require.Contains(t, status, "extruder")
}

func TestExtractStatus_MissingStatusField(t *testing.T) {
	_, err := extractStatus(map[string]interface{}{"other": "field"})
	require.Error(t, err)
}

func TestExtractStatus_WrongShape(t *testing.T) {
	_, err := extractStatus("not a map")
	require.Error(t, err)
}

func TestHandleFrame_RoutesNotificationToStatusHandler(t *testing.T) {
	c := New("ws://unused", nil)

	var got map[string]interface{}
	c.OnStatusUpdate(func(delta map[string]interface{}) { got = delta })

	c.handleFrame([]byte(`{"jsonrpc":"2.0","method":"notify_status_update","params":[{"extruder":{"temperature":200.0}}]}`))

	require.NotNil(t, got)
	require.Contains(t, got, "extruder")
}

func TestHandleFrame_RoutesResponseToPendingWaiter(t *testing.T) {
	c := New("ws://unused", nil)

	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[1] = ch
	c.mu.Unlock()

	c.handleFrame([]byte(`{"jsonrpc":"2.0","result":{"ok":true},"id":1}`))

	select {
	case res := <-ch:
		require.NoError(t, res.err)
	default:
		t.Fatal("expected a delivered result")
	}
}

func TestHandleFrame_BackendErrorSanitized(t *testing.T) {
	c := New("ws://unused", nil)

	ch := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[2] = ch
	c.mu.Unlock()

	c.handleFrame([]byte(`{"jsonrpc":"2.0","error":{"code":-1,"message":"bad\nthing"},"id":2}`))

	res := <-ch
	require.Error(t, res.err)
	require.Equal(t, "bad thing", res.err.Error())
}
