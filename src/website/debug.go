package website

import (
	"net/http"

	"git.handmade.network/hmn/discuss/src/perf"
)

func DebugCache(c *RequestContext) ResponseData {
	return c.JsonResponse(http.StatusOK, c.Discuss.CacheStats())
}

func DebugPerf(c *RequestContext) ResponseData {
	routes := []perf.RouteSummary{}
	if c.PerfCollector != nil {
		routes = c.PerfCollector.GetPerfCopy().Summarize()
	}
	return c.JsonResponse(http.StatusOK, struct {
		Routes []perf.RouteSummary `json:"routes"`
	}{routes})
}
