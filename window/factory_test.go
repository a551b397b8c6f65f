package window

import (
	"testing"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWindowAllKinds(t *testing.T) {
	cases := []types.WindowConfig{
		{Type: TypeTumbling, Params: []interface{}{"50ms"}},
		{Type: TypeSliding, Params: []interface{}{"100ms", "20ms"}},
		{Type: TypeCounting, Params: []interface{}{3}},
		{Type: TypeSession, Params: []interface{}{"40ms"}},
		{Type: TypeLengthBatch, Params: []interface{}{3}},
		{Type: TypeLength, Params: []interface{}{3}},
		{Type: TypeTime, Params: []interface{}{"50ms"}},
		{Type: TypeTimeBatch, Params: []interface{}{"50ms"}},
		{Type: TypeExternalTime, Params: []interface{}{"ts", "50ms"}},
		{Type: TypeExternalTimeBatch, Params: []interface{}{"ts", "50ms"}},
	}
	for _, c := range cases {
		w, err := CreateWindow(c)
		require.NoError(t, err, "type %s", c.Type)
		assert.NotNil(t, w, "type %s", c.Type)
		w.Stop()
	}
}

func TestCreateWindowUnsupported(t *testing.T) {
	_, err := CreateWindow(types.WindowConfig{Type: "not-a-window"})
	require.Error(t, err)
}
