package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kcard-data/metrics-quality/internal/scheduler"
	"github.com/kcard-data/metrics-quality/internal/summary"
)

// Handler 质量结果查询与任务管理的 HTTP 接口
type Handler struct {
	agg   *summary.Aggregator
	sched *scheduler.Scheduler
	now   func() time.Time
}

// New 创建 HTTP Handler
func New(agg *summary.Aggregator, sched *scheduler.Scheduler) *Handler {
	return &Handler{agg: agg, sched: sched, now: time.Now}
}

// Routes 组装路由
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", h.getSummary)
		r.Get("/failures/critical", h.getCriticalFailures)
		r.Get("/trend", h.getTrend)
		r.Get("/jobs", h.listJobs)
		r.Post("/jobs/{name}/trigger", h.triggerJob)
	})
	return r
}

type errResponse struct {
	Error string `json:"error"`
}

func renderErr(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errResponse{Error: msg})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// checkDateParam 读取 date 参数，缺省为当天
func (h *Handler) checkDateParam(r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return h.now().Format("2006-01-02"), true
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", false
	}
	return date, true
}

// summaryResponse 指定日期的校验结论汇总
type summaryResponse struct {
	Overall    *summary.Overall           `json:"overall"`
	Categories []*summary.CategorySummary `json:"categories"`
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	date, ok := h.checkDateParam(r)
	if !ok {
		renderErr(w, r, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	overall, err := h.agg.GetOverall(r.Context(), date)
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	categories, err := h.agg.ByCategory(r.Context(), date)
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, summaryResponse{Overall: overall, Categories: categories})
}

func (h *Handler) getCriticalFailures(w http.ResponseWriter, r *http.Request) {
	date, ok := h.checkDateParam(r)
	if !ok {
		renderErr(w, r, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	failures, err := h.agg.CriticalFailures(r.Context(), date)
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"check_date": date,
		"count":      len(failures),
		"failures":   failures,
	})
}

func (h *Handler) getTrend(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			renderErr(w, r, http.StatusBadRequest, "invalid days, expected 1..365")
			return
		}
		days = n
	}

	since := h.now().AddDate(0, 0, -days).Format("2006-01-02")
	points, err := h.agg.DailyTrend(r.Context(), since)
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"since":  since,
		"points": points,
	})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.sched.ListJobStatus()
	if err != nil {
		renderErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, map[string]interface{}{"jobs": statuses})
}

func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.sched.TriggerJob(name); err != nil {
		renderErr(w, r, http.StatusNotFound, err.Error())
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"job": name, "status": "triggered"})
}
