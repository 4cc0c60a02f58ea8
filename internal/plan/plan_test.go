package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flotilla/internal/graph"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/state"
)

func key(t, n string) model.Key { return model.Key{Type: t, Name: n} }

func ref(t, n, attr string) model.RefVal {
	return model.RefVal{Target: key(t, n), Attr: attr}
}

func desiredOf(t *testing.T, gen state.Generation, resources ...model.Resource) state.Desired {
	t.Helper()
	set := model.NewResourceSet()
	for _, r := range resources {
		require.NoError(t, set.Add(r))
	}
	return state.Desired{Generation: gen, Resources: set}
}

func changeFor(t *testing.T, p *Plan, k model.Key) Change {
	t.Helper()
	for _, c := range p.Changes {
		if c.Key == k {
			return c
		}
	}
	t.Fatalf("plan has no change for %s", k)
	return Change{}
}

func TestCompute_EmptyLive_AllCreates(t *testing.T) {
	desired := desiredOf(t, 1,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16")}},
		model.Resource{Key: key("subnet", "a"), Attrs: model.Attrs{"network": ref("network", "core", "id"), "cidr_block": model.StringVal("10.0.1.0/24")}},
	)

	p, err := Compute(desired, state.NewLive(), model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{Create: 2}, p.Summary)
	// Dependency ordered before dependent.
	assert.Equal(t, key("network", "core"), p.Changes[0].Key)
	assert.Equal(t, key("subnet", "a"), p.Changes[1].Key)
}

func TestCompute_Idempotent_AllNoOp(t *testing.T) {
	desired := desiredOf(t, 2,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16")}},
		model.Resource{Key: key("subnet", "a"), Attrs: model.Attrs{"network": ref("network", "core", "id")}},
	)
	live := state.NewLive()
	live.Put(key("network", "core"), model.Attrs{
		"cidr_block": model.StringVal("10.0.0.0/16"),
		"id":         model.StringVal("net-000001"),
		"arn":        model.StringVal("arn:sim:network/core/net-000001"),
	})
	live.Put(key("subnet", "a"), model.Attrs{
		"network": model.StringVal("net-000001"), // resolved reference
		"id":      model.StringVal("sub-000001"),
		"arn":     model.StringVal("arn:sim:subnet/a/sub-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.True(t, p.AllNoOp(), "unchanged desired against correct live must be all-noop, got %+v", p.Summary)
	assert.Equal(t, Summary{NoOp: 2}, p.Summary)
}

func TestCompute_MutableChange_Update(t *testing.T) {
	desired := desiredOf(t, 2,
		model.Resource{Key: key("cluster", "main"), Attrs: model.Attrs{
			"cluster_name": model.StringVal("trader"),
			"capacity":     model.IntVal(3),
		}},
	)
	live := state.NewLive()
	live.Put(key("cluster", "main"), model.Attrs{
		"cluster_name": model.StringVal("trader"),
		"capacity":     model.IntVal(2),
		"id":           model.StringVal("clu-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	c := changeFor(t, p, key("cluster", "main"))
	assert.Equal(t, ActionUpdate, c.Action)
	assert.Equal(t, model.IntVal(2), c.Diff["capacity"].Before)
	assert.Equal(t, model.IntVal(3), c.Diff["capacity"].After)
}

func TestCompute_ImmutableChange_Replace(t *testing.T) {
	desired := desiredOf(t, 2,
		model.Resource{Key: key("task_definition", "trader"), Attrs: model.Attrs{
			"family":       model.StringVal("trader"),
			"network_mode": model.StringVal("bridge"),
		}},
	)
	live := state.NewLive()
	live.Put(key("task_definition", "trader"), model.Attrs{
		"family":       model.StringVal("trader"),
		"network_mode": model.StringVal("awsvpc"),
		"id":           model.StringVal("td-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	c := changeFor(t, p, key("task_definition", "trader"))
	assert.Equal(t, ActionReplace, c.Action, "immutable attribute change must be a replace, never an update")
	assert.True(t, c.Diff["network_mode"].ForcesReplace)
}

func TestCompute_NewResourceReferencingExisting_SingleCreate(t *testing.T) {
	// Desired adds one new resource referencing two existing resources:
	// the plan is exactly one create, ordered after both dependencies.
	desired := desiredOf(t, 2,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16")}},
		model.Resource{Key: key("iam_role", "exec"), Attrs: model.Attrs{"role_name": model.StringVal("exec")}},
		model.Resource{Key: key("security_group", "svc"), Attrs: model.Attrs{
			"network": ref("network", "core", "id"),
			"role":    ref("iam_role", "exec", "arn"),
		}},
	)
	live := state.NewLive()
	live.Put(key("network", "core"), model.Attrs{
		"cidr_block": model.StringVal("10.0.0.0/16"),
		"id":         model.StringVal("net-000001"),
	})
	live.Put(key("iam_role", "exec"), model.Attrs{
		"role_name": model.StringVal("exec"),
		"arn":       model.StringVal("arn:sim:iam_role/exec/role-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Summary.Create)
	assert.Equal(t, 0, p.Summary.Update+p.Summary.Replace+p.Summary.Delete)

	var createIdx, netIdx, roleIdx int
	for i, c := range p.Changes {
		switch c.Key {
		case key("security_group", "svc"):
			createIdx = i
		case key("network", "core"):
			netIdx = i
		case key("iam_role", "exec"):
			roleIdx = i
		}
	}
	assert.Greater(t, createIdx, netIdx)
	assert.Greater(t, createIdx, roleIdx)
}

func TestCompute_RemovedResource_DeleteInReversePriorOrder(t *testing.T) {
	desired := desiredOf(t, 3,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16")}},
	)
	live := state.NewLive()
	live.Put(key("network", "core"), model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16"), "id": model.StringVal("net-000001")})
	live.Put(key("subnet", "a"), model.Attrs{"id": model.StringVal("sub-000001")})
	live.Put(key("security_group", "svc"), model.Attrs{"id": model.StringVal("sg-000001")})

	priorOrder := []model.Key{key("network", "core"), key("subnet", "a"), key("security_group", "svc")}

	p, err := Compute(desired, live, model.BuiltinSchemas(), priorOrder)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Summary.Delete)

	// Deletes follow the non-delete changes, in reverse prior order.
	var deletes []model.Key
	for _, c := range p.Changes {
		if c.Action == ActionDelete {
			deletes = append(deletes, c.Key)
		}
	}
	assert.Equal(t, []model.Key{key("security_group", "svc"), key("subnet", "a")}, deletes)
}

func TestCompute_RefToNewResource_DependentUpdates(t *testing.T) {
	// The security group exists but its role is a new resource with no
	// live state yet: the reference value is unknowable, so the group
	// must be planned as an update (role is a mutable attribute).
	desired := desiredOf(t, 2,
		model.Resource{Key: key("iam_role", "exec"), Attrs: model.Attrs{"role_name": model.StringVal("exec")}},
		model.Resource{Key: key("security_group", "svc"), Attrs: model.Attrs{"role": ref("iam_role", "exec", "arn")}},
	)
	live := state.NewLive()
	live.Put(key("security_group", "svc"), model.Attrs{"role": model.StringVal("arn:sim:iam_role/old/role-000001"), "id": model.StringVal("sg-000001")})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, changeFor(t, p, key("iam_role", "exec")).Action)
	assert.Equal(t, ActionUpdate, changeFor(t, p, key("security_group", "svc")).Action)
}

func TestCompute_ReplaceCascadesToDependents(t *testing.T) {
	// Replacing a resource regenerates its outputs, so anything
	// referencing them cannot be a no-op in the same pass: the new value
	// is only known after apply. An immutable reference attribute turns
	// the cascade into a replace of the dependent as well.
	desired := desiredOf(t, 2,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.1.0.0/16")}},
		model.Resource{Key: key("subnet", "a"), Attrs: model.Attrs{
			"network":    ref("network", "core", "id"),
			"cidr_block": model.StringVal("10.1.1.0/24"),
		}},
	)
	live := state.NewLive()
	live.Put(key("network", "core"), model.Attrs{
		"cidr_block": model.StringVal("10.0.0.0/16"), // immutable change
		"id":         model.StringVal("net-000001"),
	})
	live.Put(key("subnet", "a"), model.Attrs{
		"network":    model.StringVal("net-000001"),
		"cidr_block": model.StringVal("10.1.1.0/24"),
		"id":         model.StringVal("sub-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionReplace, changeFor(t, p, key("network", "core")).Action)
	assert.Equal(t, ActionReplace, changeFor(t, p, key("subnet", "a")).Action,
		"a dependent referencing a replaced resource must be re-applied, not left pointing at the deleted one")
	assert.Equal(t, 0, p.Summary.NoOp)

	// Dependent ordered after the replacement it depends on.
	var netIdx, subIdx int
	for i, c := range p.Changes {
		switch c.Key {
		case key("network", "core"):
			netIdx = i
		case key("subnet", "a"):
			subIdx = i
		}
	}
	assert.Greater(t, subIdx, netIdx)
}

func TestCompute_ReplaceCascade_MutableRefUpdates(t *testing.T) {
	// A mutable reference to a replaced resource downgrades the cascade
	// to an in-place update of the dependent.
	desired := desiredOf(t, 2,
		model.Resource{Key: key("load_balancer", "edge"), Attrs: model.Attrs{"lb_type": model.StringVal("network")}},
		model.Resource{Key: key("dns_record", "app"), Attrs: model.Attrs{
			"record_name": model.StringVal("app.sim"),
			"target":      ref("load_balancer", "edge", "dns_name"),
		}},
	)
	live := state.NewLive()
	live.Put(key("load_balancer", "edge"), model.Attrs{
		"lb_type":  model.StringVal("application"), // immutable change
		"id":       model.StringVal("lb-000001"),
		"dns_name": model.StringVal("lb-000001.elb.sim"),
	})
	live.Put(key("dns_record", "app"), model.Attrs{
		"record_name": model.StringVal("app.sim"),
		"target":      model.StringVal("lb-000001.elb.sim"),
		"id":          model.StringVal("dns-000001"),
	})

	p, err := Compute(desired, live, model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	assert.Equal(t, ActionReplace, changeFor(t, p, key("load_balancer", "edge")).Action)
	assert.Equal(t, ActionUpdate, changeFor(t, p, key("dns_record", "app")).Action)
}

func TestCompute_CyclePropagates(t *testing.T) {
	desired := desiredOf(t, 1,
		model.Resource{Key: key("security_group", "a"), Attrs: model.Attrs{"peer": ref("security_group", "b", "id")}},
		model.Resource{Key: key("security_group", "b"), Attrs: model.Attrs{"peer": ref("security_group", "a", "id")}},
	)
	_, err := Compute(desired, state.NewLive(), model.BuiltinSchemas(), nil)
	require.Error(t, err)
	assert.True(t, graph.IsCycleError(err))
}

func TestCompute_Deterministic(t *testing.T) {
	desired := desiredOf(t, 1,
		model.Resource{Key: key("network", "core"), Attrs: model.Attrs{"cidr_block": model.StringVal("10.0.0.0/16")}},
		model.Resource{Key: key("log_group", "app"), Attrs: model.Attrs{"group_name": model.StringVal("/app")}},
		model.Resource{Key: key("iam_role", "exec"), Attrs: model.Attrs{"role_name": model.StringVal("exec")}},
	)
	first, err := Compute(desired, state.NewLive(), model.BuiltinSchemas(), nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compute(desired, state.NewLive(), model.BuiltinSchemas(), nil)
		require.NoError(t, err)
		assert.Equal(t, first.Changes, again.Changes)
	}
}
