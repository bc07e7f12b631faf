package shelly

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/meteremu/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialRPC(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/rpc", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var doc map[string]any
	require.NoError(t, conn.ReadJSON(&doc))
	return doc
}

func TestWebSocketRequest(t *testing.T) {
	_, srv := newTestServer(t, &staticStore{data: singlePhaseSnapshot()})
	conn := dialRPC(t, srv.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"src":"peer","method":"EM.GetStatus"}`)))
	doc := readFrame(t, conn)
	assert.Equal(t, 1.0, doc["id"])
	assert.Equal(t, "shellypro3em-aabbccddeeff", doc["src"])
	assert.Equal(t, "peer", doc["dst"])
	result := doc["result"].(map[string]any)
	assert.Equal(t, 520.0, result["a_act_power"])
}

func TestWebSocketUnknownMethodKeepsConnection(t *testing.T) {
	_, srv := newTestServer(t, &staticStore{data: singlePhaseSnapshot()})
	conn := dialRPC(t, srv.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"src":"peer","method":"Nope.Nope"}`)))
	doc := readFrame(t, conn)
	rpcErr := doc["error"].(map[string]any)
	assert.Equal(t, -114.0, rpcErr["code"])
	assert.Equal(t, "Method Nope.Nope failed: Method not found!", rpcErr["message"])
	assert.NotContains(t, doc, "result")

	// malformed frames are skipped
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{{{`)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2,"src":"peer","method":"Shelly.GetDeviceInfo"}`)))
	doc = readFrame(t, conn)
	assert.Equal(t, 2.0, doc["id"])
	assert.NotNil(t, doc["result"])
}

func TestWebSocketResponsesInOrder(t *testing.T) {
	_, srv := newTestServer(t, &staticStore{data: singlePhaseSnapshot()})
	conn := dialRPC(t, srv.URL)

	methods := []string{"Shelly.GetStatus", "EM.GetStatus", "Unknown.Method", "EMData.GetStatus", "Sys.GetStatus"}
	for i, method := range methods {
		frame := fmt.Sprintf(`{"id":%d,"src":"peer","method":%q}`, i, method)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	for i := range methods {
		doc := readFrame(t, conn)
		assert.Equal(t, float64(i), doc["id"])
	}
}

func TestWebSocketNotifyStatus(t *testing.T) {
	f, srv := newTestServer(t, &staticStore{data: singlePhaseSnapshot()})
	conn := dialRPC(t, srv.URL)

	// identify
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"src":"peer","method":"Shelly.GetDeviceInfo"}`)))
	readFrame(t, conn)

	f.hub.NotifyStatus(domain.NewMeterData([]domain.PhaseData{{ActPower: -1200}}, time.Unix(1700000001, 0)))
	doc := readFrame(t, conn)
	assert.Equal(t, "NotifyStatus", doc["method"])
	assert.Equal(t, "peer", doc["dst"])
	params := doc["params"].(map[string]any)
	em := params["em:0"].(map[string]any)
	assert.Equal(t, -1200.0, em["a_act_power"])
	raw, err := json.Marshal(params["emdata:0"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "total_act")
}

func TestWebSocketAnonymousPeerGetsNoNotification(t *testing.T) {
	f, srv := newTestServer(t, &staticStore{data: singlePhaseSnapshot()})
	conn := dialRPC(t, srv.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"method":"Shelly.GetDeviceInfo"}`)))
	readFrame(t, conn)

	f.hub.NotifyStatus(singlePhaseSnapshot())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2,"method":"EM.GetStatus"}`)))
	doc := readFrame(t, conn)
	assert.Equal(t, 2.0, doc["id"])
}
