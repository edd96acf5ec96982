package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChuLiYu/geotile/pkg/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Value{}},
		{"empty string", "", Value{}},
		{"blank string", "   ", Value{}},
		{"None literal", "None", Value{}},
		{"zero string", "0", Value{}},
		{"zero int", 0, Value{}},
		{"zero float", 0.0, Value{}},
		{"digit string", "12", Value{Kind: Int, Int: 12}},
		{"padded digit string", " 7 ", Value{Kind: Int, Int: 7}},
		{"int", 5, Value{Kind: Int, Int: 5}},
		{"integral float", 8.0, Value{Kind: Int, Int: 8}},
		{"fractional float", 2.5, Value{Kind: Text, Text: "2.5"}},
		{"text", "A1", Value{Kind: Text, Text: "A1"}},
		{"signed text", "-3", Value{Kind: Text, Text: "-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestValueEqualAcrossEncodings(t *testing.T) {
	assert.True(t, Normalize("5").Equal(Normalize(5)))
	assert.True(t, Normalize(5.0).Equal(Normalize("05")))
	assert.False(t, Normalize("5").Equal(Normalize("A")))
	assert.True(t, Normalize(nil).Equal(Normalize("None")))
}

func TestGroupKey(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{"MT equal", map[string]any{"Type": "MT", "M": 5, "MN": 5}, "5"},
		{"MT differ with B", map[string]any{"Type": "MT", "M": 5, "MN": 8, "B": 3}, "3/8"},
		{"MT differ without B", map[string]any{"Type": "MT", "M": 5, "MN": 8}, "8"},
		{"MT both absent", map[string]any{"Type": "MT", "M": nil, "MN": nil}, "0"},
		{"MT only M", map[string]any{"Type": "MT", "M": "4", "MN": "None"}, "4"},
		{"MT only MN", map[string]any{"Type": "MT", "M": "", "MN": 9}, "9"},
		{"MT mixed encodings equal", map[string]any{"Type": "MT", "M": "6", "MN": 6.0}, "6"},
		{"MT zero is absent", map[string]any{"Type": "MT", "M": 0, "MN": "0"}, "0"},
		{"MU uses M", map[string]any{"Type": "MU", "M": 2, "MN": 7}, "2"},
		{"MU/KW uses M", map[string]any{"Type": "MU/KW", "M": "11"}, "11"},
		{"KW without M", map[string]any{"Type": "KW"}, "0"},
		{"K uses K", map[string]any{"Type": "K", "K": "7"}, "7"},
		{"K without K falls back to M", map[string]any{"Type": "K", "M": 3}, "3"},
		{"unknown type uses M", map[string]any{"Type": "X", "M": 4}, "4"},
		{"unknown type no M", map[string]any{"Type": "X"}, "0"},
		{"missing type", map[string]any{"M": "text"}, "text"},
		{"type padded", map[string]any{"Type": " K ", "K": 1}, "1"},
		{"no attributes", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GroupKey(tt.attrs))
		})
	}
}

func TestGroupKeyDeterministic(t *testing.T) {
	attrs := map[string]any{"Type": "MT", "M": "5", "MN": 8, "B": "3"}
	first := GroupKey(attrs)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, GroupKey(attrs))
	}
}

func TestAssign(t *testing.T) {
	features := []types.Feature{
		{Properties: map[string]any{"Type": "K", "K": 7}},
		{Properties: nil},
	}
	Assign(features)

	assert.Equal(t, "7", features[0].Properties[types.GroupKeyField])
	assert.Equal(t, "0", features[1].Properties[types.GroupKeyField])
	assert.Equal(t, 7, features[0].Properties["K"], "source attributes are not modified")
}

func TestAssignReplacesSourceGroupKey(t *testing.T) {
	features := []types.Feature{
		{Properties: map[string]any{"Type": "MU", "M": "12", types.GroupKeyField: "legacy"}},
	}
	Assign(features)
	assert.Equal(t, "12", features[0].Properties[types.GroupKeyField])

	Assign(features)
	assert.Equal(t, "12", features[0].Properties[types.GroupKeyField], "assignment is stable")
}
