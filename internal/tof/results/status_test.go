package results

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus_DefinedCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TargetStatus{Class: StatusValid, Code: 5}, ClassifyStatus(5))
	assert.Equal(t, TargetStatus{Class: StatusHalfValid, Code: 6}, ClassifyStatus(6))
	assert.Equal(t, TargetStatus{Class: StatusHalfValid, Code: 9}, ClassifyStatus(9))
	assert.Equal(t, TargetStatus{Class: StatusInvalid, Code: 255}, ClassifyStatus(255))

	for v := 0; v <= 13; v++ {
		if v == 5 || v == 6 || v == 9 {
			continue
		}
		got := ClassifyStatus(uint8(v))
		assert.Equal(t, StatusOther, got.Class, "code %d", v)
		assert.Equal(t, uint8(v), got.Code)
	}
}

func TestClassifyStatus_UndefinedCodesPanic(t *testing.T) {
	t.Parallel()

	for v := 14; v <= 254; v++ {
		code := uint8(v)
		assert.Panics(t, func() { ClassifyStatus(code) }, "code %d", v)

		_, err := ParseTargetStatus(code)
		assert.Error(t, err, "code %d", v)
	}
}

func TestClassifyStatus_PanicValue(t *testing.T) {
	t.Parallel()

	defer func() {
		p := recover()
		ce, ok := p.(*ContractError)
		require.True(t, ok, "panic value %T", p)
		assert.Equal(t, "target_status", ce.Field)
		assert.Equal(t, int64(42), ce.Value)
	}()
	ClassifyStatus(42)
}

func TestTargetStatus_Usable(t *testing.T) {
	t.Parallel()

	assert.True(t, ClassifyStatus(5).Usable())
	assert.True(t, ClassifyStatus(9).Usable())
	assert.False(t, ClassifyStatus(255).Usable())
	assert.False(t, ClassifyStatus(10).Usable())
}

func TestTargetStatus_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal([]TargetStatus{ClassifyStatus(5), ClassifyStatus(255)})
	require.NoError(t, err)
	assert.JSONEq(t, `[5,255]`, string(b))

	var back []TargetStatus
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, StatusValid, back[0].Class)
	assert.Equal(t, StatusInvalid, back[1].Class)

	var bad TargetStatus
	assert.Error(t, json.Unmarshal([]byte(`100`), &bad))
}
