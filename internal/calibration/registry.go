package calibration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"evcore/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 中文说明：
// 校准参数注册表：从 YAML 读取阈值，文件变更时热加载。
// 读取失败/校验失败都只告警并保留上一份（或内置默认），评估不受影响。

// fileConfig calibration.yaml 的根结构。
type fileConfig struct {
	Calibration map[string]any `yaml:"calibration"`
}

// Snapshot 一次加载结果。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Params   Params
}

// ChangeListener 热加载成功后回调。
type ChangeListener func(Snapshot)

// Registry 管理参数快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取参数文件并监听更新；path 为空时只用内置默认。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	r.snapshot = Snapshot{Version: 1, LoadedAt: time.Now(), Params: Defaults()}
	if r.path == "" {
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(underlying(err)) {
			logger.Warnf("calibration 文件不存在，使用内置默认: %s", r.path)
			return r, nil
		}
		return nil, fmt.Errorf("read calibration config failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		logger.Warnf("calibration 加载失败，使用内置默认: %v", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("calibration 热加载失败，保留上一份参数: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Params 返回当前参数（值拷贝，评估周期内不变）。
func (r *Registry) Params() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Params
}

// Snapshot 返回当前快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// OnChange 注册热加载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readCalibrationFile(r.path)
	if err != nil {
		return err
	}
	if err := validateCalibration(cfg.Calibration); err != nil {
		return err
	}
	params := Defaults()
	if len(cfg.Calibration) > 0 {
		raw, err := yaml.Marshal(cfg.Calibration)
		if err != nil {
			return err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&params); err != nil {
			return fmt.Errorf("parse calibration params failed: %w", err)
		}
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Params:   params,
	}
	r.mu.Unlock()
	logger.Infof("calibration 加载成功 version=%d path=%s", r.Snapshot().Version, r.path)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	snap := r.snapshot
	r.mu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer safeRecover("calibration listener")
			fn(snap)
		}()
	}
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

func readCalibrationFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read calibration file failed: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse calibration file failed: %w", err)
	}
	return cfg, nil
}

// calibrationSchema 约束关键比例字段的范围，防止热加载进非法值。
const calibrationSchema = `{
  "type": "object",
  "properties": {
    "min_exit_advantage_pct": {"type": "number", "minimum": 0, "maximum": 5},
    "close_soften_ratio": {"type": "number", "minimum": 0.5, "maximum": 1},
    "giveback_base_allowance": {"type": "number", "minimum": 0.05, "maximum": 0.9},
    "volume_reset_epsilon": {"type": "number", "minimum": 0.01, "maximum": 0.5},
    "potential_gain_cap_pct": {"type": "number", "minimum": 1, "maximum": 50},
    "scale_in_thesis_floor": {"type": "number", "minimum": 0, "maximum": 1},
    "stop_atr_mult": {"type": "number", "minimum": 0.5, "maximum": 10},
    "structure_buffer_atr": {"type": "number", "minimum": 0, "maximum": 5}
  }
}`

var (
	calSchemaOnce sync.Once
	calSchema     *jsonschema.Schema
	calSchemaErr  error
)

func validateCalibration(data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	calSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("calibration.json", strings.NewReader(calibrationSchema)); err != nil {
			calSchemaErr = err
			return
		}
		calSchema, calSchemaErr = compiler.Compile("calibration.json")
	})
	if calSchemaErr != nil {
		return calSchemaErr
	}
	// yaml 解出的 map 需要过一遍 json 规范化再交给 schema。
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := calSchema.Validate(doc); err != nil {
		return fmt.Errorf("calibration 参数越界: %w", err)
	}
	return nil
}

func underlying(err error) error {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
	return err
}
