package acceptance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/service"
)

func (s *Suite) TestRateLimiterAdmitsExactlyLimitUnderConcurrency() {
	limiter := service.NewRateLimiter(s.Redis)
	const (
		limit   = 5
		callers = 32
	)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(context.Background(), "concurrent:127.0.0.1", limit, time.Minute)
			s.NoError(err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(limit), allowed.Load())

	res, err := limiter.Allow(context.Background(), "concurrent:127.0.0.1", limit, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.GreaterOrEqual(res.RetryAfter, time.Second)
	s.LessOrEqual(res.RetryAfter, time.Minute)
}
