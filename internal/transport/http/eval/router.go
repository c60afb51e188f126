package evalhttp

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"evcore/internal/calibration"
	"evcore/internal/engine"
	"evcore/internal/logger"
	"evcore/internal/peak"
	"evcore/internal/pipeline"
	"evcore/internal/report"
	"evcore/internal/store/decisionlog"
	"evcore/internal/types"
)

const maxSnapshotBytes = 1 << 20

// Router 暴露评估与查询接口。
type Router struct {
	Engine      *engine.Engine
	Peaks       *peak.Tracker
	Calibration *calibration.Registry
	Logs        *decisionlog.DecisionLogStore
	Builder     *pipeline.SnapshotBuilder
	Reporter    *report.Reporter
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/evaluate", r.handleEvaluate)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/decisions/:trace/snapshot", r.handleDecisionSnapshot)
	group.GET("/peaks", r.handlePeaks)
	group.POST("/positions/:symbol/closed", r.handlePositionClosed)
	group.GET("/calibration", r.handleCalibration)
	if r.Builder != nil {
		group.POST("/evaluate/:symbol", r.handleEvaluateLive)
	}
	if r.Reporter != nil {
		group.GET("/report/:symbol", r.handleReport)
	}
}

// handleEvaluate 接收外部拼装好的完整快照并评估。
func (r *Router) handleEvaluate(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败"})
		return
	}
	snap, err := types.DecodeSnapshot(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dec, err := r.Engine.Evaluate(c.Request.Context(), snap)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	r.appendLog(c, &dec, raw)
	c.JSON(http.StatusOK, dec)
}

// liveEvaluateRequest 实时评估时调用方只给持仓，行情由快照构建器现拉。
type liveEvaluateRequest struct {
	Position types.PositionState `json:"position"`
	Account  types.AccountRisk   `json:"account"`
	ML       types.MLPrediction  `json:"ml_prediction"`
	News     types.NewsTiming    `json:"news"`
	Regime   types.RegimeMetrics `json:"regime"`
}

func (r *Router) handleEvaluateLive(c *gin.Context) {
	var req liveEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := r.Builder.Build(c.Request.Context(), pipeline.BuildInput{
		Symbol:   c.Param("symbol"),
		Position: req.Position,
		Account:  req.Account,
		ML:       req.ML,
		News:     req.News,
		Regime:   req.Regime,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	dec, err := r.Engine.Evaluate(c.Request.Context(), snap)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	r.appendLog(c, &dec, nil)
	c.JSON(http.StatusOK, dec)
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.Logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "决策日志未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := r.Logs.Recent(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records, "count": len(records)})
}

func (r *Router) handleDecisionSnapshot(c *gin.Context) {
	if r.Logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "决策日志未启用"})
		return
	}
	raw, err := r.Logs.Snapshot(c.Request.Context(), c.Param("trace"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (r *Router) handlePeaks(c *gin.Context) {
	records := r.Peaks.All()
	c.JSON(http.StatusOK, gin.H{"peaks": records, "count": len(records)})
}

// handlePositionClosed 持仓关闭后由上游回调，清空峰值与防抖状态。
func (r *Router) handlePositionClosed(c *gin.Context) {
	symbol := types.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	r.Engine.PositionClosed(c.Request.Context(), symbol)
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "symbol": symbol})
}

func (r *Router) handleCalibration(c *gin.Context) {
	if r.Calibration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "calibration registry 未注入"})
		return
	}
	c.JSON(http.StatusOK, r.Calibration.Snapshot())
}

func (r *Router) handleReport(c *gin.Context) {
	if r.Logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "决策日志未启用"})
		return
	}
	symbol := types.NormalizeSymbol(c.Param("symbol"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	records, err := r.Logs.Recent(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if strings.EqualFold(c.Query("format"), "png") {
		png, err := r.Reporter.RenderPNG(c.Request.Context(), symbol, records)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}
	path, err := r.Reporter.RenderHTML(symbol, records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// appendLog 落库失败只打日志，不影响评估响应。
func (r *Router) appendLog(c *gin.Context, dec *types.Decision, raw []byte) {
	if r.Logs == nil {
		return
	}
	if err := r.Logs.Append(c.Request.Context(), dec, raw); err != nil {
		logger.Warnf("决策日志写入失败 trace=%s: %v", dec.TraceID, err)
	}
}
