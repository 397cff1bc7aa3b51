package ops

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"tidemark/internal/feed"
	"tidemark/internal/logger"
)

// renderChart serves a candlestick chart for one market feed, rendered from
// the stored snapshot rather than a live exchange call.
func (h *handlers) renderChart(c *gin.Context) {
	if h.cfg.Snaps == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot store not enabled"})
		return
	}
	key := feed.MarketKey{
		ExchangeID: c.Query("exchange_id"),
		Symbol:     c.Query("symbol"),
		Timeframe:  c.Query("timeframe"),
	}
	if key.ExchangeID == "" || key.Symbol == "" || key.Timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exchange_id, symbol and timeframe are required"})
		return
	}
	st, err := h.cfg.States.GetMarket(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil || st.StorageKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for feed " + key.String()})
		return
	}
	candles, err := h.cfg.Snaps.LoadCandles(c.Request.Context(), st.StorageKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", key.Symbol, key.Timeframe),
			Subtitle: fmt.Sprintf("last closed %d, %d candles", st.LastClosedCandleTime, len(candles)),
		}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 20}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 50, End: 100}),
	)

	x := make([]string, 0, len(candles))
	data := make([]opts.KlineData, 0, len(candles))
	for _, candle := range candles {
		x = append(x, time.UnixMilli(candle.OpenTime).UTC().Format("01-02 15:04"))
		data = append(data, opts.KlineData{
			Value: [4]float64{candle.Open, candle.Close, candle.Low, candle.High},
		})
	}
	kline.SetXAxis(x).AddSeries(key.Symbol, data)

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := kline.Render(c.Writer); err != nil {
		logger.Warnf("ops http: render chart for %s failed: %v", key, err)
	}
}
