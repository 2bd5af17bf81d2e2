package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gin-gonic/gin"

	"github.com/finsurehub/finsurehub/internal/collector"
	"github.com/finsurehub/finsurehub/internal/logx"
	"github.com/finsurehub/finsurehub/internal/processor"
)

// 无头浏览器正文抽取服务，供采集任务在 RSS 摘要过短时补全原文
func main() {
	logx.Init(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "pretty"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 整个进程复用一个 headless 实例
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx); err != nil {
		logx.Warnf("warmup chromedp failed: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "OK"}) })
	r.POST("/extract", func(c *gin.Context) {
		var req collector.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, collector.ExtractResponse{Error: "invalid json"})
			return
		}
		if req.URL == "" {
			c.JSON(http.StatusBadRequest, collector.ExtractResponse{Error: "url is required"})
			return
		}
		if req.MaxChars <= 0 || req.MaxChars > 8000 {
			req.MaxChars = 4000
		}

		rctx, cancel := context.WithTimeout(browserCtx, 20*time.Second)
		defer cancel()
		var text string
		err := chromedp.Run(rctx,
			chromedp.Navigate(req.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(extractJS, &text),
		)
		if err != nil {
			logx.Warnf("extract %s: %v", req.URL, err)
			c.JSON(http.StatusOK, collector.ExtractResponse{Error: err.Error()})
			return
		}

		text = collapseBlankLines(text)
		if text == "" {
			c.JSON(http.StatusOK, collector.ExtractResponse{Error: "empty content"})
			return
		}
		c.JSON(http.StatusOK, collector.ExtractResponse{OK: true, Text: processor.TruncateRunes(text, req.MaxChars)})
	})

	srv := &http.Server{Addr: ":" + getEnv("PORT", "4000"), Handler: r}
	go func() {
		logx.Infof("browser-scraper listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// collapseBlankLines 统一换行并把多余空行压成一个
func collapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

// extractJS 先在常见正文容器里找，找不到再收集全页较长段落
const extractJS = `(function () {
  var selectors = [
    "article",
    "[itemprop=articleBody]",
    "div.article-body",
    "div.article-content",
    "div.story-body",
    "div.entry-content",
    "main",
    "div#content"
  ];
  var text = "";
  for (var i = 0; i < selectors.length; i++) {
    var el = document.querySelector(selectors[i]);
    text = el ? (el.innerText || "").trim() : "";
    if (text.length > 200) break;
  }
  if (text.length < 200) {
    var nodes = Array.prototype.slice.call(document.querySelectorAll("p"));
    var pieces = [];
    for (var j = 0; j < nodes.length; j++) {
      var t = (nodes[j].innerText || "").trim();
      if (t.length >= 40) pieces.push(t);
      if (pieces.join("\n\n").length > 8000) break;
    }
    text = pieces.join("\n\n");
  }
  return text.replace(/[ \t]+\n/g, "\n").trim();
})();`
