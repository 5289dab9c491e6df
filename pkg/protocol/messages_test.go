package protocol

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHubMessage(t *testing.T) {
	frame, err := EncodeHubMessage(&ValidateRequest{
		URL:        "https://example.com",
		CallbackID: "cb-1",
		WebsiteID:  "site-1",
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(frame, &raw))
	assert.Equal(t, "validate", raw["type"])
	data := raw["data"].(map[string]any)
	assert.Equal(t, "https://example.com", data["url"])
	assert.Equal(t, "cb-1", data["callbackId"])
	assert.Equal(t, "site-1", data["websiteId"])
}

func TestDecodeAgentMessage(t *testing.T) {
	t.Run("signup request", func(t *testing.T) {
		msg, err := DecodeAgentMessage([]byte(`{"type":"signup","data":{"publicKey":"PK1","ip":"10.0.0.1","callbackId":"cb","signedMessage":"sig"}}`))
		require.NoError(t, err)
		req, ok := msg.(*SignupRequest)
		require.True(t, ok)
		assert.Equal(t, "PK1", req.PublicKey)
		assert.Equal(t, "10.0.0.1", req.IP)
	})

	t.Run("validate reply", func(t *testing.T) {
		msg, err := DecodeAgentMessage([]byte(`{"type":"validate","data":{"status":"up","callbackId":"cb","latency":42,"validatorId":"v1","signedMessage":"sig","websiteId":"w1"}}`))
		require.NoError(t, err)
		reply, ok := msg.(*ValidateReply)
		require.True(t, ok)
		assert.Equal(t, StatusUp, reply.Status)
		assert.Equal(t, int64(42), reply.Latency)
		assert.Equal(t, "w1", reply.WebsiteID)
	})

	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"unknown type", `{"type":"heartbeat","data":{}}`, ErrUnknownType},
		{"missing type", `{"data":{}}`, ErrMalformed},
		{"not json", `hello`, ErrMalformed},
		{"null data", `{"type":"signup","data":null}`, ErrMalformed},
		{"signup without key", `{"type":"signup","data":{"callbackId":"cb","signedMessage":"s"}}`, ErrMalformed},
		{"validate with bad status", `{"type":"validate","data":{"status":"sideways","callbackId":"cb"}}`, ErrMalformed},
		{"validate without callback", `{"type":"validate","data":{"status":"up"}}`, ErrMalformed},
		{"wrong field type", `{"type":"validate","data":{"status":"up","callbackId":"cb","latency":"fast"}}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeAgentMessage([]byte(tt.frame))
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeHubMessage(t *testing.T) {
	frame, err := EncodeHubMessage(&SignupAck{CallbackID: "cb", ValidatorID: "v1"})
	require.NoError(t, err)

	msg, err := DecodeHubMessage(frame)
	require.NoError(t, err)
	ack, ok := msg.(*SignupAck)
	require.True(t, ok)
	assert.Equal(t, "v1", ack.ValidatorID)

	_, err = DecodeHubMessage([]byte(`{"type":"payout","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeHubMessage([]byte(`{"type":"validate","data":{"callbackId":"cb"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestChallenges(t *testing.T) {
	assert.Equal(t, "Signed message for cb-1, PK1", SignupChallenge("cb-1", "PK1"))
	assert.Equal(t, "Replying cb-1", ReplyChallenge("cb-1"))
}

func TestNewCallbackID(t *testing.T) {
	t.Run("ids are UUIDv7", func(t *testing.T) {
		id, err := uuid.Parse(NewCallbackID())
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	})

	t.Run("ids are unique under concurrent generation", func(t *testing.T) {
		const workers, perWorker = 16, 500
		var mu sync.Mutex
		seen := make(map[string]struct{}, workers*perWorker)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				local := make([]string, 0, perWorker)
				for j := 0; j < perWorker; j++ {
					local = append(local, NewCallbackID())
				}
				mu.Lock()
				for _, id := range local {
					seen[id] = struct{}{}
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, seen, workers*perWorker)
	})

	t.Run("ids sort by creation order", func(t *testing.T) {
		first := NewCallbackID()
		second := NewCallbackID()
		assert.Less(t, first, second)
	})
}
