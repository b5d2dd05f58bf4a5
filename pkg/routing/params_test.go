package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsBindsStringAndInteger(t *testing.T) {
	specs := []ParamSpec{
		{Key: "post_id", Kind: ParamInteger},
		{Key: "name", Kind: ParamString, Optional: true},
	}
	values, err := parseParams("post_id=42&name=anon", specs)
	require.NoError(t, err)
	assert.Equal(t, int64(42), values["post_id"].Integer)
	assert.True(t, values["post_id"].Present)
	assert.Equal(t, "anon", values["name"].String)
}

func TestParseParamsEmptyQueryStringAlwaysFails(t *testing.T) {
	specs := []ParamSpec{{Key: "post_id", Kind: ParamInteger, Optional: true}}
	_, err := parseParams("", specs)
	assert.ErrorIs(t, err, ErrInvalidRequest, "an absent query string fails even when every param is optional")
}

func TestParseParamsMissingRequiredFails(t *testing.T) {
	specs := []ParamSpec{{Key: "post_id", Kind: ParamInteger}}
	_, err := parseParams("other=1", specs)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseParamsMalformedIntegerLeavesUnbound(t *testing.T) {
	specs := []ParamSpec{{Key: "post_id", Kind: ParamInteger, Optional: true}}
	values, err := parseParams("post_id=notanumber", specs)
	require.NoError(t, err)
	assert.False(t, values["post_id"].Present)
}

func TestParseParamsIgnoresUnknownKeys(t *testing.T) {
	specs := []ParamSpec{{Key: "post_id", Kind: ParamInteger}}
	values, err := parseParams("bogus=1&post_id=7", specs)
	require.NoError(t, err)
	assert.Equal(t, int64(7), values["post_id"].Integer)
}

func TestParseParamsFirstOccurrenceWins(t *testing.T) {
	specs := []ParamSpec{{Key: "post_id", Kind: ParamInteger}}
	values, err := parseParams("post_id=1&post_id=2", specs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), values["post_id"].Integer)
}
