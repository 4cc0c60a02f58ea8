package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef_Valid(t *testing.T) {
	ref, ok := ParseRef("${network.core.id}")
	require.True(t, ok)
	assert.Equal(t, Key{Type: "network", Name: "core"}, ref.Target)
	assert.Equal(t, "id", ref.Attr)
}

func TestParseRef_NotARef(t *testing.T) {
	cases := []string{
		"network.core.id",
		"${network.core}",
		"${network.core.id.extra}",
		"${..}",
		"${}",
		"plain string",
	}
	for _, c := range cases {
		_, ok := ParseRef(c)
		assert.False(t, ok, "expected %q not to parse as a reference", c)
	}
}

func TestRefVal_String_RoundTrips(t *testing.T) {
	ref := RefVal{Target: Key{Type: "iam_role", Name: "task_exec"}, Attr: "arn"}
	parsed, ok := ParseRef(ref.String())
	require.True(t, ok)
	assert.Equal(t, ref, parsed)
}

func TestAttrs_Refs_DeterministicOrder(t *testing.T) {
	attrs := Attrs{
		"z_role":  RefVal{Target: Key{Type: "iam_role", Name: "exec"}, Attr: "arn"},
		"a_nets": ListVal{
			RefVal{Target: Key{Type: "subnet", Name: "a"}, Attr: "id"},
			RefVal{Target: Key{Type: "subnet", Name: "b"}, Attr: "id"},
		},
		"name": StringVal("web"),
	}

	first := attrs.Refs()
	require.Len(t, first, 3)
	// Sorted attribute key order: a_nets (list order), then z_role.
	assert.Equal(t, Key{Type: "subnet", Name: "a"}, first[0].Target)
	assert.Equal(t, Key{Type: "subnet", Name: "b"}, first[1].Target)
	assert.Equal(t, Key{Type: "iam_role", Name: "exec"}, first[2].Target)

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, attrs.Refs(), "ref order must be deterministic across runs")
	}
}

func TestAttrs_Clone_IsDeep(t *testing.T) {
	attrs := Attrs{
		"tags": MapVal{"env": StringVal("prod")},
		"list": ListVal{IntVal(1), IntVal(2)},
	}
	clone := attrs.Clone()
	clone["tags"].(MapVal)["env"] = StringVal("dev")
	clone["list"].(ListVal)[0] = IntVal(99)

	assert.Equal(t, StringVal("prod"), attrs["tags"].(MapVal)["env"])
	assert.Equal(t, IntVal(1), attrs["list"].(ListVal)[0])
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b AttrValue
		want bool
	}{
		{"equal strings", StringVal("a"), StringVal("a"), true},
		{"different strings", StringVal("a"), StringVal("b"), false},
		{"string vs int", StringVal("1"), IntVal(1), false},
		{"equal refs", RefVal{Target: Key{Type: "network", Name: "core"}, Attr: "id"}, RefVal{Target: Key{Type: "network", Name: "core"}, Attr: "id"}, true},
		{"different ref attr", RefVal{Target: Key{Type: "network", Name: "core"}, Attr: "id"}, RefVal{Target: Key{Type: "network", Name: "core"}, Attr: "arn"}, false},
		{"equal lists", ListVal{IntVal(1), BoolVal(true)}, ListVal{IntVal(1), BoolVal(true)}, true},
		{"list length differs", ListVal{IntVal(1)}, ListVal{IntVal(1), IntVal(2)}, false},
		{"equal maps", MapVal{"a": IntVal(1)}, MapVal{"a": IntVal(1)}, true},
		{"map key differs", MapVal{"a": IntVal(1)}, MapVal{"b": IntVal(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestResourceSet_PreservesDeclarationOrder(t *testing.T) {
	set := NewResourceSet()
	keys := []Key{
		{Type: "network", Name: "core"},
		{Type: "subnet", Name: "a"},
		{Type: "cluster", Name: "main"},
	}
	for _, k := range keys {
		require.NoError(t, set.Add(Resource{Key: k, Attrs: Attrs{}}))
	}
	assert.Equal(t, keys, set.Keys())
}

func TestResourceSet_Add_RejectsDuplicate(t *testing.T) {
	set := NewResourceSet()
	k := Key{Type: "network", Name: "core"}
	require.NoError(t, set.Add(Resource{Key: k}))
	err := set.Add(Resource{Key: k})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.core")
}

func TestResourceSet_Clone_Independent(t *testing.T) {
	set := NewResourceSet()
	k := Key{Type: "network", Name: "core"}
	require.NoError(t, set.Add(Resource{Key: k, Attrs: Attrs{"cidr_block": StringVal("10.0.0.0/16")}}))

	clone := set.Clone()
	cloned, _ := clone.Get(k)
	cloned.Attrs["cidr_block"] = StringVal("10.1.0.0/16")

	original, _ := set.Get(k)
	assert.Equal(t, StringVal("10.0.0.0/16"), original.Attrs["cidr_block"])
}
