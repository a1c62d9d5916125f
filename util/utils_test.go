package util_test

import (
	"testing"

	"github.com/fedquery/fq/util"
	"github.com/stretchr/testify/require"
)

func TestWhen(t *testing.T) {
	require.Equal(t, "a", util.When(true, "a", "b"))
	require.Equal(t, "b", util.When(false, "a", "b"))
}

func TestOkeys(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, util.Okeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	require.Empty(t, util.Okeys(map[int]bool{}))
}
