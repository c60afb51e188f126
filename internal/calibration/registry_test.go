package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_SetupLadder(t *testing.T) {
	p := Defaults()

	// 节奏越慢，容忍的亏损越大、预期时长越长、目标越远。
	assert.Less(t, p.Scalp.LossCapPct, p.Day.LossCapPct)
	assert.Less(t, p.Day.LossCapPct, p.Swing.LossCapPct)
	assert.Less(t, p.Scalp.ExpectedDurationMin, p.Day.ExpectedDurationMin)
	assert.Less(t, p.Day.ExpectedDurationMin, p.Swing.ExpectedDurationMin)
	assert.Less(t, p.Scalp.ATRTargetMult, p.Swing.ATRTargetMult)

	assert.Equal(t, p.Scalp, p.ForSetup("SCALP"))
	assert.Equal(t, p.Swing, p.ForSetup("SWING"))
	assert.Equal(t, p.Day, p.ForSetup("DAY"))
	assert.Equal(t, p.Day, p.ForSetup("unknown"))
}

func TestRegistry_EmptyPathUsesDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	assert.Equal(t, Defaults(), r.Params())
	assert.EqualValues(t, 1, r.Snapshot().Version)
}

func TestRegistry_MissingFileFallsBackToDefaults(t *testing.T) {
	r, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), r.Params())
}

func TestRegistry_LoadsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	content := `calibration:
  min_exit_advantage_pct: 0.25
  stop_atr_mult: 3.0
  day:
    trailing_lock: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)

	p := r.Params()
	assert.InDelta(t, 0.25, p.MinExitAdvantagePct, 1e-9)
	assert.InDelta(t, 3.0, p.StopATRMult, 1e-9)
	assert.InDelta(t, 0.5, p.Day.TrailingLock, 1e-9)
	// 未覆盖的键保留默认。
	assert.InDelta(t, Defaults().CloseSoftenRatio, p.CloseSoftenRatio, 1e-9)
	assert.InDelta(t, Defaults().Day.LossCapPct, p.Day.LossCapPct, 1e-9)
}

func TestRegistry_RejectsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	content := `calibration:
  close_soften_ratio: 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)
	// 越界参数整份拒绝，保留内置默认。
	assert.Equal(t, Defaults(), r.Params())
}

func TestRegistry_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	content := `calibration:
  not_a_real_knob: 1.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), r.Params())
}
