/*
scenarios_test.go - Built-in scenario catalog tests

The built-ins double as integration fixtures: each one must build into a
valid group configuration and run to completion, or the demo endpoints
are broken.
*/
package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/waterfall-engine/config"
	"github.com/meridian/waterfall-engine/group"
)

func TestListBuiltinScenarios_CatalogMatchesDefinitions(t *testing.T) {
	infos := ListBuiltinScenarios()
	require.NotEmpty(t, infos)

	for _, info := range infos {
		assert.NotEmpty(t, info.Name, "scenario %s needs a name", info.ID)
		assert.NotEmpty(t, info.Description, "scenario %s needs a description", info.ID)

		_, ok := BuiltinScenario(info.ID)
		assert.True(t, ok, "catalog entry %s has no definition", info.ID)
	}
}

func TestBuiltinScenario_UnknownID(t *testing.T) {
	_, ok := BuiltinScenario("does-not-exist")
	assert.False(t, ok)
}

func TestBuiltinScenarios_BuildAndRun(t *testing.T) {
	// Every built-in must survive the full pipeline: file shape to typed
	// config to a completed group run with a consolidated view.
	for _, info := range ListBuiltinScenarios() {
		t.Run(info.ID, func(t *testing.T) {
			file, ok := BuiltinScenario(info.ID)
			require.True(t, ok)

			cfg, err := config.Build(file)
			require.NoError(t, err, "scenario %s must build", info.ID)

			res, err := group.Run(cfg)
			require.NoError(t, err, "scenario %s must run", info.ID)
			require.NotNil(t, res.Consolidated)
			assert.Len(t, res.Consolidated.Periods, cfg.Entities[0].Periods)
			assert.Len(t, res.Entities, len(cfg.Entities))
		})
	}
}

func TestLanseriaScenario_IntercompanySupportFlows(t *testing.T) {
	// GIVEN: The flagship three-entity scenario
	// WHEN: Running it
	// THEN: The energy company actually lends to the water utility, and
	//       the timber estate stays out of the link

	file, ok := BuiltinScenario("smart-city-lanseria")
	require.True(t, ok)
	cfg, err := config.Build(file)
	require.NoError(t, err)

	res, err := group.Run(cfg)
	require.NoError(t, err)

	lender := res.Entities["gre"]
	require.NotNil(t, lender)
	advanced := false
	for _, p := range lender.Periods {
		if p.Waterfall.IntercompanyLent.IsPositive() {
			advanced = true
			break
		}
	}
	assert.True(t, advanced, "expected the lender to advance at least once")

	timber := res.Entities["tmb"]
	require.NotNil(t, timber)
	for _, p := range timber.Periods {
		assert.Zero(t, p.IntercompanyBalance.Float64(),
			"period %d: standalone entity should carry no overdraft", p.Index)
	}
}
