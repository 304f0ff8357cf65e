package statechain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bridgeval/engine/internal/test"
	"github.com/bridgeval/engine/pkg/ceremony"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/witness"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ceremony.Reporter = (*Client)(nil)
	_ witness.Submitter = (*Client)(nil)
)

type rpcRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// node is a fake state chain node. It answers every request, records
// submitted extrinsics and pushes events to subscribers.
type node struct {
	mtx        sync.Mutex
	extrinsics []json.RawMessage
	notify     []string
	fail       string
}

func (n *node) serve(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			n.mtx.Lock()
			switch {
			case req.Method == methodSubscribe:
				resp["result"] = "sub-1"
			case req.Method == methodSubmit && n.fail != "":
				resp["error"] = map[string]interface{}{"code": 1010, "message": n.fail}
			case req.Method == methodSubmit:
				n.extrinsics = append(n.extrinsics, req.Params[0])
				resp["result"] = "0xhash"
			default:
				resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
			}
			notify := n.notify
			n.notify = nil
			n.mtx.Unlock()

			if err := conn.WriteJSON(resp); err != nil {
				return
			}
			for _, ev := range notify {
				msg := `{"jsonrpc":"2.0","method":"` + methodEvent + `","params":{"subscription":"sub-1","result":` + ev + `}}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			}
		}
	}))
}

func dial(t *testing.T, n *node) (*Client, context.CancelFunc) {
	srv := n.serve(t)
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), test.AccountIDs(1)[0], zerolog.Nop())
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	return c, func() {
		cancel()
		<-done
	}
}

func TestClient_Report(t *testing.T) {
	n := &node{}
	c, stop := dial(t, n)
	defer stop()
	ctx := context.Background()
	ids := test.AccountIDs(3)

	require.NoError(t, c.ReportKeygenOutcome(ctx, 42, []byte{2, 0xab}, nil))
	require.NoError(t, c.ReportSigningOutcome(ctx, 9, nil, []party.AccountID{ids[1]}))
	require.NoError(t, c.ReportKeygenOutcome(ctx, 43, nil, nil))

	n.mtx.Lock()
	defer n.mtx.Unlock()
	require.Len(t, n.extrinsics, 3)
	self := ids[0].String()
	assert.JSONEq(t, `{"origin":"`+self+`","call":"report_keygen_outcome","args":[42,{"success":"0x02ab"}]}`, string(n.extrinsics[0]))
	assert.JSONEq(t, `{"origin":"`+self+`","call":"report_signing_outcome","args":[9,{"failure":["`+ids[1].String()+`"]}]}`, string(n.extrinsics[1]))
	assert.JSONEq(t, `{"origin":"`+self+`","call":"report_keygen_outcome","args":[43,{"failure":[]}]}`, string(n.extrinsics[2]))
}

func TestClient_RPCError(t *testing.T) {
	n := &node{fail: "bad origin"}
	c, stop := dial(t, n)
	defer stop()

	err := c.SubmitExtrinsic(context.Background(), "witness_staked")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 1010, rpcErr.Code)

	assert.Error(t, c.Call(context.Background(), "unknown_method", nil, nil))
}

func TestClient_Events(t *testing.T) {
	ids := test.AccountIDs(3)
	n := &node{notify: []string{
		`{"type":"KeygenRequest","data":{"ceremony_id":42,"participants":["` + ids[0].String() + `","` + ids[1].String() + `"]}}`,
		`{"type":"Unknown","data":{}}`,
		`{"type":"SigningRequest","data":{"ceremony_id":8,"public_key":"0x02ff","participants":[],"payload":"0xabab"}}`,
		`{"type":"KeyChange","data":{"chain":"eth","old_key":"0x01","new_key":"0x02","tx_hash":"0x` + strings.Repeat("11", 32) + `"}}`,
		`{"type":"Staked","data":{"chain":"eth","amount":"oops"}}`,
	}}
	c, stop := dial(t, n)
	defer stop()

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub)

	ev := <-c.Events()
	keygen, ok := ev.(*witness.KeygenRequest)
	require.True(t, ok)
	assert.EqualValues(t, 42, keygen.CeremonyID)
	assert.Equal(t, ids[:2], keygen.Participants)

	ev = <-c.Events()
	signing, ok := ev.(*witness.SigningRequest)
	require.True(t, ok)
	assert.Equal(t, witness.HexBytes{0xab, 0xab}, signing.Payload)

	obs := <-c.Observations()
	change, ok := obs.(*witness.KeyChange)
	require.True(t, ok)
	assert.Equal(t, witness.HexBytes{2}, change.NewKey)
}

func TestClient_Closed(t *testing.T) {
	n := &node{}
	c, stop := dial(t, n)
	stop()

	assert.ErrorIs(t, c.Call(context.Background(), methodSubscribe, nil, nil), ErrClosed)
	_, ok := <-c.Events()
	assert.False(t, ok, "event stream is closed with the connection")
}

func TestDecodeEvent(t *testing.T) {
	ev, obs, err := decodeEvent(json.RawMessage(`{"type":"Claimed","data":{"chain":"eth","amount":12,"tx_hash":"0x` + strings.Repeat("22", 32) + `"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev)
	claimed, ok := obs.(*witness.Claimed)
	require.True(t, ok)
	assert.EqualValues(t, 12, claimed.Amount.Int64())

	_, _, err = decodeEvent(json.RawMessage(`[]`))
	assert.Error(t, err)
}
