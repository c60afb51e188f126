package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	dumpMu  sync.Mutex
	dumpLog *log.Logger
)

// SetDecisionWriter 配置决策明细的独立输出（nil 表示关闭）。
func SetDecisionWriter(w io.Writer) {
	dumpMu.Lock()
	defer dumpMu.Unlock()
	if w == nil {
		dumpLog = nil
		return
	}
	dumpLog = log.New(w, "", log.LstdFlags)
}

// DumpDecision 把一次评估的 EV 明细写入决策日志文件。
func DumpDecision(traceID, symbol, body string) {
	dumpMu.Lock()
	logger := dumpLog
	dumpMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[EVAL]")
	if symbol != "" {
		b.WriteString("[")
		b.WriteString(symbol)
		b.WriteString("]")
	}
	if traceID != "" {
		b.WriteString("[")
		b.WriteString(traceID)
		b.WriteString("]")
	}
	b.WriteString("\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}
