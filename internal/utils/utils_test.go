package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	logger.SetLogLevel(INFO)
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.SetLogLevel(INFO)
		logger.Enable(true)
	})
	return &buf
}

func TestLoggerFormat(t *testing.T) {
	buf := captureLogger(t)

	GetLogger().Named("session").Info("session opened", map[string]interface{}{
		"state":     "empty",
		"script_id": "s1",
	})

	line := buf.String()
	for _, want := range []string{"[INFO]", "utils_test.go", "[session] session opened", "| script_id=s1 state=empty"} {
		if !strings.Contains(line, want) {
			t.Fatalf("日志行缺少 %q: %s", want, line)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	buf := captureLogger(t)
	logger := GetLogger().Named("x")

	logger.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("INFO 级别不应输出 DEBUG: %s", buf.String())
	}

	GetLogger().SetLogLevel(DEBUG)
	logger.Debug("shown", nil)
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("DEBUG 级别应输出调试日志")
	}

	buf.Reset()
	GetLogger().Enable(false)
	logger.Errorf("failed %d", 1)
	if buf.Len() != 0 {
		t.Fatal("禁用后不应输出日志")
	}
}

func TestNamedNesting(t *testing.T) {
	buf := captureLogger(t)
	GetLogger().Named("api").Named("ws").Warnf("slow %s", "client")
	if !strings.Contains(buf.String(), "[WARNING]") || !strings.Contains(buf.String(), "[api.ws] slow client") {
		t.Fatalf("子日志名称应逐级拼接: %s", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	captureLogger(t)
	logFile := filepath.Join(t.TempDir(), "logs", "app.log")

	if err := InitLogger(logFile); err != nil {
		t.Fatalf("初始化日志文件失败: %v", err)
	}
	GetLogger().Info("to file", nil)
	CloseLogger()

	data, err := os.ReadFile(logFile)
	if err != nil || !strings.Contains(string(data), "to file") {
		t.Fatalf("日志应写入文件: %q %v", data, err)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{"debug": DEBUG, "WARN": WARNING, "error": ERROR, "": INFO, "bogus": INFO}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("hits")
			m.IncGauge("open")
		}()
	}
	wg.Wait()

	if got := m.GetCounterValue("hits"); got != 50 {
		t.Fatalf("并发计数不正确: %d", got)
	}
	m.DecGauge("open")
	if got := m.GetGauge("open"); got != 49 {
		t.Fatalf("仪表值不正确: %d", got)
	}
	if m.GetCounterValue("missing") != 0 || m.GetGauge("missing") != 0 {
		t.Fatal("不存在的指标应为 0")
	}

	for _, v := range []int64{5, 1, 9} {
		m.RecordHistogram("latency", v)
	}
	h, ok := m.GetHistogram("latency")
	if !ok || h.Count != 3 || h.Sum != 15 || h.Min != 1 || h.Max != 9 {
		t.Fatalf("直方图统计不正确: %+v", h)
	}

	snap := m.Snapshot()
	if snap.Counters["hits"] != 50 || snap.Histograms["latency"].Count != 3 {
		t.Fatalf("快照不正确: %+v", snap)
	}
}

func TestStudioMetrics(t *testing.T) {
	captureLogger(t)
	sm := &StudioMetrics{metrics: NewMetricsCollector(), logger: GetLogger().Named("metrics")}

	sm.RecordAPIRequest("/api/scripts", "GET", 200, 3*time.Millisecond)
	sm.RecordAPIRequest("/api/scripts", "GET", 404, time.Millisecond)
	sm.RecordTransition("generateBeats", true)
	sm.RecordTransition("generateNextScene", false)
	sm.RecordPagination(10, 2, time.Microsecond)
	sm.SessionOpened()
	sm.SessionOpened()
	sm.SessionClosed()
	sm.RecordError("validation_error", "session")

	c := sm.Collector()
	checks := map[string]int64{
		"api_requests_total":                   2,
		"api_requests_GET_/api/scripts":        2,
		"api_responses_2xx":                    1,
		"api_responses_4xx":                    1,
		"lifecycle_actions_total":              2,
		"lifecycle_applied_generateBeats":      1,
		"lifecycle_rejected_generateNextScene": 1,
		"pagination_runs_total":                1,
		"sessions_opened_total":                2,
		"errors_total":                         1,
		"errors_validation_error":              1,
		"errors_session":                       1,
	}
	for name, want := range checks {
		if got := c.GetCounterValue(name); got != want {
			t.Errorf("%s = %d, 期望 %d", name, got, want)
		}
	}
	if got := c.GetGauge("sessions_active"); got != 1 {
		t.Errorf("活跃会话数 = %d, 期望 1", got)
	}
	if h, ok := c.GetHistogram("pagination_pages"); !ok || h.Max != 2 {
		t.Errorf("分页页数直方图不正确: %+v", h)
	}
}
