package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("trigger insert", func(t *testing.T) {
		n, err := Decode([]byte(`{"type":"INSERT","new":{"id":"a1","date":"2025-03-10","start_time":"09:00:00","end_time":"09:30:00","type":"consultation","status_code":"FIRM"},"old":null}`))
		require.NoError(t, err)

		ins, ok := n.(Insert)
		require.True(t, ok)
		assert.Equal(t, "a1", ins.RecordID())
		assert.Equal(t, "09:00", ins.New.StartTime)
		assert.Equal(t, "09:30", ins.New.EndTime)
	})

	t.Run("hosted update uses eventType", func(t *testing.T) {
		n, err := Decode([]byte(`{"eventType":"update","new":{"id":"a1","date":"2025-03-10","start_time":"10:00"},"old":{"id":"a1"}}`))
		require.NoError(t, err)

		upd, ok := n.(Update)
		require.True(t, ok)
		assert.Equal(t, OpUpdate, upd.Op())
		assert.Equal(t, "a1", upd.Old.ID)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := Decode([]byte(`{"type":"DELETE","old":{"id":"a1"}}`))
		require.NoError(t, err)
		_, ok := n.(Delete)
		require.True(t, ok)
		assert.Equal(t, "a1", n.RecordID())
	})
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"TRUNCATE"}`,
		`{"type":"INSERT"}`,
		`{"type":"UPDATE","new":{"id":""}}`,
		`{"type":"DELETE","new":{"id":"a1"}}`,
	} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}
