package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DoyleJ11/gameroom/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_PutsTypeTagOnFlatObject(t *testing.T) {
	data, err := Encode(PassTurn{ActorID: "hero"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "pass_turn", fields["type"])
	assert.Equal(t, "hero", fields["actorId"])
}

func TestEncode_EmptyMessage(t *testing.T) {
	data, err := Encode(NextTurn{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"next_turn"}`, string(data))
}

func TestDecodeClient_HoldTurn(t *testing.T) {
	m, err := DecodeClient([]byte(`{"type":"hold_turn","actorId":"a1","holdType":"until","triggerActorId":"orc"}`))
	require.NoError(t, err)

	hold, ok := m.(HoldTurn)
	require.True(t, ok, "got %T", m)
	assert.Equal(t, domain.HoldUntil, hold.HoldType)
	assert.Equal(t, "orc", hold.TriggerActorID)
}

func TestDecodeServer_CombatUpdateWithNilCombat(t *testing.T) {
	data, err := Encode(CombatUpdate{Version: 4})
	require.NoError(t, err)

	m, err := DecodeServer(data)
	require.NoError(t, err)
	upd := m.(CombatUpdate)
	assert.Equal(t, 4, upd.Version)
	assert.Nil(t, upd.Combat)
}

func TestDecode_Rejections(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"type":`, ErrMalformed},
		{"missing type", `{"actorId":"a"}`, ErrMalformed},
		{"unknown type", `{"type":"teleport"}`, ErrUnknownType},
		{"wrong field type", `{"type":"pass_turn","actorId":7}`, ErrMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClient([]byte(tc.data))
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeServer_DoesNotAcceptClientKinds(t *testing.T) {
	_, err := DecodeServer([]byte(`{"type":"next_turn"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
