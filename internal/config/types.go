package config

// Config 是 evcore 宿主进程的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	Peaks       PeaksConfig       `toml:"peaks"`
	Calibration CalibrationConfig `toml:"calibration"`
	DecisionLog DecisionLogConfig `toml:"decision_log"`
	Market      MarketConfig      `toml:"market"`
	Report      ReportConfig      `toml:"report"`
}

type AppConfig struct {
	Env              string `toml:"env"`
	LogLevel         string `toml:"log_level"`
	HTTPAddr         string `toml:"http_addr"`
	LogPath          string `toml:"log_path"`
	DecisionDumpPath string `toml:"decision_dump_path"`
}

// PeaksConfig 峰值仓储选择：file（默认，单 JSON 文件）或 sqlite。
type PeaksConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type CalibrationConfig struct {
	Path string `toml:"path"`
}

type DecisionLogConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MarketConfig 可选的快照构建数据源（交易所 K 线 → 指标快照）。
// 关闭时 /api/evaluate 只接受外部喂入的完整快照。
type MarketConfig struct {
	Enabled     bool     `toml:"enabled"`
	Exchange    string   `toml:"exchange"`
	Testnet     bool     `toml:"testnet"`
	Symbols     []string `toml:"symbols"`
	CandleLimit int      `toml:"candle_limit"`
}

// ReportConfig 决策/EV 报表输出。
type ReportConfig struct {
	Enabled   bool   `toml:"enabled"`
	OutputDir string `toml:"output_dir"`
	Capture   bool   `toml:"capture"` // 是否尝试用无头浏览器截 PNG
}
