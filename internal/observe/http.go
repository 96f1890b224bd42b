package observe

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health 报告进程是否可用，返回 nil 表示健康
type Health func() error

// NewHandler 提供 /healthz 与 /metrics
func NewHandler(health Health) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// NewHTTPServer 构造观测用 HTTP 服务，由调用方负责 ListenAndServe/Shutdown
func NewHTTPServer(addr string, health Health) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(health),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
