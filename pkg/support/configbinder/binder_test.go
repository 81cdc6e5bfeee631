package configbinder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/covidash/pkg/support/configbinder"
)

type poolProps struct {
	MaxOpenConns int    `yaml:"max_open_conns"`
	Name         string `yaml:"name"`
}

func TestBindProperties(t *testing.T) {
	var target poolProps
	require.NoError(t, configbinder.BindProperties(map[string]interface{}{"max_open_conns": "10", "name": "warehouse"}, &target))
	assert.Equal(t, poolProps{MaxOpenConns: 10, Name: "warehouse"}, target)

	untouched := poolProps{Name: "keep"}
	require.NoError(t, configbinder.BindProperties(nil, &untouched))
	assert.Equal(t, "keep", untouched.Name)

	err := configbinder.BindProperties(map[string]interface{}{"max_open_conns": "ten"}, &target)
	assert.ErrorContains(t, err, "poolProps")
}
