package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

var errRateLimited = errors.New("rate limit exceeded")

// rateLimit limits each client IP to perMinute requests per minute.
func rateLimit(perMinute int, onLimit stdlib.LimitReachedHandler) func(http.Handler) http.Handler {
	instance := limiter.New(memory.NewStore(), limiter.Rate{
		Period: time.Minute,
		Limit:  int64(perMinute),
	})
	return stdlib.NewMiddleware(instance, stdlib.WithLimitReachedHandler(onLimit)).Handler
}

func (s *Server) limitReached(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
}
