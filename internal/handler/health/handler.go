// Package health serves the liveness and readiness probes.
//
// /healthz always answers 200 while the process can serve HTTP. /readyz runs
// every registered Checker and answers 503 when any of them fails; it also
// reports which gateway mode (live or fallback) the process started in.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/clinic-interpreter/backend/pkg/utils"
)

const checkTimeout = 5 * time.Second

// Checker 是一个具名的依赖检查。
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Mode   string            `json:"mode,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler 健康检查处理器，检查项在构造时固定。
type Handler struct {
	mode     string
	checkers []Checker
}

// New creates a Handler reporting mode and evaluating checkers in order.
func New(mode string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{mode: mode, checkers: c}
}

// RegisterRoutes 注册 /healthz 与 /readyz。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
}

// Healthz 存活探针
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz 就绪探针
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
			continue
		}
		checks[c.Name] = "ok"
	}

	res := result{Status: "ok", Mode: h.mode, Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	utils.RespondJSON(w, status, res)
}
