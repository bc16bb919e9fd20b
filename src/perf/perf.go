package perf

import (
	"context"
	"sort"
	"sync"
	"time"

	"git.handmade.network/hmn/discuss/src/jobs"
)

type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time

	mu     *sync.Mutex
	Blocks []PerfBlock
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
		mu:     &sync.Mutex{},
	}
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	now := time.Now()
	for i := range rp.Blocks {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = now
		}
	}
	rp.End = now
}

func (rp *RequestPerf) Checkpoint(category, description string) {
	if rp == nil {
		return
	}
	now := time.Now()
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
	})
}

/*
Starts a timed block. End the block with the returned handle. Safe to call on
a nil *RequestPerf, so code running outside a request (jobs, CLI commands)
can use the same helpers.
*/
func (rp *RequestPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return nil
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{rp: rp, idx: len(rp.Blocks) - 1}
}

type BlockHandle struct {
	rp  *RequestPerf
	idx int
}

func (h *BlockHandle) End() {
	if h == nil {
		return
	}
	h.rp.mu.Lock()
	defer h.rp.mu.Unlock()
	if h.rp.Blocks[h.idx].End.IsZero() {
		h.rp.Blocks[h.idx].End = time.Now()
	}
}

func (rp *RequestPerf) Duration() time.Duration {
	return rp.End.Sub(rp.Start)
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

// A copy of the request with its blocks, safe to hand to another goroutine.
func (rp *RequestPerf) snapshot() RequestPerf {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return RequestPerf{
		Route:  rp.Route,
		Path:   rp.Path,
		Method: rp.Method,
		Start:  rp.Start,
		End:    rp.End,
		Blocks: append([]PerfBlock(nil), rp.Blocks...),
		mu:     &sync.Mutex{},
	}
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

type perfContextKey struct{}

func AttachPerf(ctx context.Context, rp *RequestPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, rp)
}

// Returns the request perf attached to ctx. May be nil; every method on
// *RequestPerf tolerates that.
func ExtractPerf(ctx context.Context) *RequestPerf {
	rp, _ := ctx.Value(perfContextKey{}).(*RequestPerf)
	return rp
}

// Aggregate timings for one route, as shown on the debug endpoint.
type RouteSummary struct {
	Route    string  `json:"route"`
	Requests int     `json:"requests"`
	AvgMs    float64 `json:"avg_ms"`
	MaxMs    float64 `json:"max_ms"`
	SQLMs    float64 `json:"sql_ms"`
}

type PerfStorage struct {
	AllRequests []RequestPerf
}

func (s *PerfStorage) Summarize() []RouteSummary {
	byRoute := map[string]*RouteSummary{}
	for i := range s.AllRequests {
		req := &s.AllRequests[i]
		sum, ok := byRoute[req.Route]
		if !ok {
			sum = &RouteSummary{Route: req.Route}
			byRoute[req.Route] = sum
		}
		ms := float64(req.Duration().Nanoseconds()) / 1000 / 1000
		sum.Requests++
		sum.AvgMs += ms
		if ms > sum.MaxMs {
			sum.MaxMs = ms
		}
		for j := range req.Blocks {
			if req.Blocks[j].Category == "SQL" {
				sum.SQLMs += req.Blocks[j].DurationMs()
			}
		}
	}

	result := make([]RouteSummary, 0, len(byRoute))
	for _, sum := range byRoute {
		sum.AvgMs /= float64(sum.Requests)
		result = append(result, *sum)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Route < result[j].Route
	})
	return result
}

type PerfCollector struct {
	In          chan<- RequestPerf
	Job         *jobs.Job
	RequestCopy chan<- (chan<- PerfStorage)
}

// Keeps at most this many requests; older ones are dropped.
const maxStoredRequests = 1000

func RunPerfCollector() *PerfCollector {
	job := jobs.New("perf collector")
	in := make(chan RequestPerf)
	requestCopy := make(chan (chan<- PerfStorage))

	var storage PerfStorage

	go func() {
		defer job.Finish()

		for {
			select {
			case perf := <-in:
				storage.AllRequests = append(storage.AllRequests, perf)
				if over := len(storage.AllRequests) - maxStoredRequests; over > 0 {
					storage.AllRequests = storage.AllRequests[over:]
				}
			case resultChan := <-requestCopy:
				resultChan <- PerfStorage{
					AllRequests: append([]RequestPerf(nil), storage.AllRequests...),
				}
			case <-job.Canceled():
				return
			}
		}
	}()

	return &PerfCollector{
		In:          in,
		Job:         job,
		RequestCopy: requestCopy,
	}
}

func (perfCollector *PerfCollector) SubmitRun(run *RequestPerf) {
	select {
	case perfCollector.In <- run.snapshot():
	case <-perfCollector.Job.Finished():
	}
}

func (perfCollector *PerfCollector) GetPerfCopy() *PerfStorage {
	resultChan := make(chan PerfStorage, 1)
	select {
	case perfCollector.RequestCopy <- resultChan:
	case <-perfCollector.Job.Finished():
		return &PerfStorage{}
	}
	perfStorageCopy := <-resultChan
	return &perfStorageCopy
}
