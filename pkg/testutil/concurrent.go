package testutil

import (
	"errors"
	"sync"

	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/sentinel"
)

// ConcurrentResult tallies the outcomes of RunConcurrent. Codes counts every
// failure by domain code, so tests can assert on codes the named buckets do not cover.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	Errors    int32
	Codes     map[dErrors.Code]int32
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines, releases them together and waits for all of them.
// Duplicate federation numbers count as conflicts.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		res   = &ConcurrentResult{Codes: map[dErrors.Code]int32{}}
	)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Successes++
				return
			}
			res.Codes[dErrors.CodeOf(err)]++
			switch {
			case errors.Is(err, sentinel.ErrConflict),
				dErrors.HasCode(err, dErrors.CodeConflict),
				dErrors.HasCode(err, dErrors.CodeDuplicateFederationID):
				res.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				res.NotFounds++
			default:
				res.Errors++
			}
		}()
	}
	close(start)
	wg.Wait()
	return res
}
