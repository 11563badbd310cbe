package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotdeploy/pkg/errors"
	"github.com/arthur-debert/dotdeploy/pkg/modules"
	"github.com/arthur-debert/dotdeploy/pkg/types"
)

type mapSource map[string][]string

func (s mapSource) Load(name string) (*modules.Module, error) {
	deps, ok := s[name]
	if !ok {
		return nil, errors.Newf(errors.ErrModuleNotFound, "module %s not found", name)
	}
	return &modules.Module{
		Name:        name,
		Location:    "/dots/modules/" + name,
		Declaration: &modules.Declaration{Depends: deps},
	}, nil
}

func names(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func reasons(nodes []Node) map[string]types.Reason {
	out := make(map[string]types.Reason, len(nodes))
	for _, n := range nodes {
		out[n.Name()] = n.Reason
	}
	return out
}

func TestOrderDependenciesFirst(t *testing.T) {
	src := mapSource{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
		"d": nil,
	}

	g, err := Build(context.Background(), src, []string{"a", "d"}, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "d"}, names(order))

	r := reasons(order)
	assert.Equal(t, types.ReasonManual, r["a"])
	assert.Equal(t, types.ReasonManual, r["d"])
	assert.Equal(t, types.ReasonAutomatic, r["b"])
	assert.Equal(t, types.ReasonAutomatic, r["c"])
}

func TestRequestedDependencyIsManual(t *testing.T) {
	src := mapSource{"a": {"b"}, "b": nil}

	g, err := Build(context.Background(), src, []string{"a", "b", "a"}, 1)
	require.NoError(t, err)

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, names(order))
	assert.Equal(t, types.ReasonManual, reasons(order)["b"])
}

func TestCycleIsReported(t *testing.T) {
	src := mapSource{"a": {"b"}, "b": {"c"}, "c": {"a"}}

	g, err := Build(context.Background(), src, []string{"a"}, 2)
	require.NoError(t, err)

	_, err = g.Order()
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDependencyCycle))
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestSelfDependencyIsCycle(t *testing.T) {
	g, err := Build(context.Background(), mapSource{"a": {"a"}}, []string{"a"}, 1)
	require.NoError(t, err)

	_, err = g.Order()
	assert.True(t, errors.IsErrorCode(err, errors.ErrDependencyCycle))
}

func TestMissingDependencyFailsBuild(t *testing.T) {
	src := mapSource{"a": {"ghost", "phantom"}}

	_, err := Build(context.Background(), src, []string{"a"}, 2)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrModuleNotFound))
	assert.Contains(t, err.Error(), "ghost")
	assert.Contains(t, err.Error(), "phantom")
}

func TestReachable(t *testing.T) {
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"x": {"y"},
	}
	got := Reachable([]string{"a"}, deps)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, got)
}
