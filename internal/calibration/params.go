package calibration

// 中文说明：
// 评估引擎的全部可调参数。默认值即源公式的编译常量；
// 通过 calibration.yaml 可在运行中覆盖（Registry 热加载）。

// SetupParams 按节奏类型区分的参数。
type SetupParams struct {
	LossCapPct         float64 `mapstructure:"loss_cap_pct" yaml:"loss_cap_pct"`                 // potential_loss 上限（账户 %）
	ExpectedDurationMin float64 `mapstructure:"expected_duration_min" yaml:"expected_duration_min"` // 预期持仓时长（分钟）
	ATRTargetMult      float64 `mapstructure:"atr_target_mult" yaml:"atr_target_mult"`           // 无结构位时目标 = ATR × 倍数
	TrailingLock       float64 `mapstructure:"trailing_lock" yaml:"trailing_lock"`               // 追踪止损锁定的利润比例
	TrailingActivation float64 `mapstructure:"trailing_activation" yaml:"trailing_activation"`   // 追踪激活分数基准阈值
}

// Params 一次评估读取的参数快照（值语义，热加载时整体替换）。
type Params struct {
	// 退出门槛与滞回
	MinExitAdvantagePct float64 `mapstructure:"min_exit_advantage_pct" yaml:"min_exit_advantage_pct"`
	CloseSoftenRatio    float64 `mapstructure:"close_soften_ratio" yaml:"close_soften_ratio"`
	DeepLossPct         float64 `mapstructure:"deep_loss_pct" yaml:"deep_loss_pct"`
	ReversalOverrideDeep float64 `mapstructure:"reversal_override_deep" yaml:"reversal_override_deep"`
	ReversalOverrideSolo float64 `mapstructure:"reversal_override_solo" yaml:"reversal_override_solo"`

	// 峰值回吐
	GivebackBaseAllowance  float64 `mapstructure:"giveback_base_allowance" yaml:"giveback_base_allowance"`
	GivebackThesisBonus    float64 `mapstructure:"giveback_thesis_bonus" yaml:"giveback_thesis_bonus"`
	GivebackSizeTightening float64 `mapstructure:"giveback_size_tightening" yaml:"giveback_size_tightening"`
	VolumeResetEpsilon     float64 `mapstructure:"volume_reset_epsilon" yaml:"volume_reset_epsilon"`

	// 目标与盈亏几何
	PotentialGainCapPct       float64 `mapstructure:"potential_gain_cap_pct" yaml:"potential_gain_cap_pct"`
	TargetExceededOverride    float64 `mapstructure:"target_exceeded_override" yaml:"target_exceeded_override"`
	TradingCostPct            float64 `mapstructure:"trading_cost_pct" yaml:"trading_cost_pct"`
	AgeAmplifierExponent      float64 `mapstructure:"age_amplifier_exponent" yaml:"age_amplifier_exponent"`
	ScaleInThesisFloor        float64 `mapstructure:"scale_in_thesis_floor" yaml:"scale_in_thesis_floor"`
	PrematureCaptureThreshold float64 `mapstructure:"premature_capture_threshold" yaml:"premature_capture_threshold"`

	// 止损几何
	StopATRMult        float64 `mapstructure:"stop_atr_mult" yaml:"stop_atr_mult"`
	StructureBufferATR float64 `mapstructure:"structure_buffer_atr" yaml:"structure_buffer_atr"`
	BreakevenScore     float64 `mapstructure:"breakeven_score" yaml:"breakeven_score"`

	// 节奏分类边界：TP 距离（ATR 倍数）
	ScalpMaxTPATR float64 `mapstructure:"scalp_max_tp_atr" yaml:"scalp_max_tp_atr"`
	DayMaxTPATR   float64 `mapstructure:"day_max_tp_atr" yaml:"day_max_tp_atr"`

	Scalp SetupParams `mapstructure:"scalp" yaml:"scalp"`
	Day   SetupParams `mapstructure:"day" yaml:"day"`
	Swing SetupParams `mapstructure:"swing" yaml:"swing"`
}

// Defaults 返回编译内置的参数。
func Defaults() Params {
	return Params{
		MinExitAdvantagePct:  0.15,
		CloseSoftenRatio:     0.9,
		DeepLossPct:          0.3,
		ReversalOverrideDeep: 0.5,
		ReversalOverrideSolo: 0.6,

		GivebackBaseAllowance:  0.35,
		GivebackThesisBonus:    0.25,
		GivebackSizeTightening: 0.20,
		VolumeResetEpsilon:     0.05,

		PotentialGainCapPct:       10,
		TargetExceededOverride:    1.5,
		TradingCostPct:            0.02,
		AgeAmplifierExponent:      1.5,
		ScaleInThesisFloor:        0.4,
		PrematureCaptureThreshold: 0.3,

		StopATRMult:        2.0,
		StructureBufferATR: 0.5,
		BreakevenScore:     0.6,

		ScalpMaxTPATR: 1.5,
		DayMaxTPATR:   4.0,

		Scalp: SetupParams{
			LossCapPct:          0.5,
			ExpectedDurationMin: 90,
			ATRTargetMult:       1.0,
			TrailingLock:        0.65,
			TrailingActivation:  0.45,
		},
		Day: SetupParams{
			LossCapPct:          1.0,
			ExpectedDurationMin: 480,
			ATRTargetMult:       1.5,
			TrailingLock:        0.40,
			TrailingActivation:  0.55,
		},
		Swing: SetupParams{
			LossCapPct:          2.0,
			ExpectedDurationMin: 2880,
			ATRTargetMult:       2.5,
			TrailingLock:        0.15,
			TrailingActivation:  0.65,
		},
	}
}

// ForSetup 按节奏类型取对应子参数。
func (p Params) ForSetup(setup string) SetupParams {
	switch setup {
	case "SCALP":
		return p.Scalp
	case "SWING":
		return p.Swing
	default:
		return p.Day
	}
}
