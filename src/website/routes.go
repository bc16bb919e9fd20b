package website

import (
	"net/http"
	"regexp"
	"time"

	"git.handmade.network/hmn/discuss/src/discuss"
	"git.handmade.network/hmn/discuss/src/perf"
)

// Requests that run longer than this are abandoned with a 504.
const requestTimeoutDuration = 30 * time.Second

func NewWebsiteRoutes(svc *discuss.Service, perfCollector *perf.PerfCollector) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			withService(svc),
			trackRequestPerf(perfCollector),
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
			requestTimeout(requestTimeoutDuration),
			readUser,
		},
	}
	authed := routes.WithMiddleware(needsUser)

	routes.GET(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/replies$`), GetThread)
	routes.GET(regexp.MustCompile(`^/replies/(?P<replyid>[0-9]+)/votes$`), RecountVotes)

	authed.POST(regexp.MustCompile(`^/topics$`), CreateTopic)
	authed.POST(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/replies$`), CreateReply)
	authed.POST(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/solution$`), MarkSolution)
	authed.POST(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/solution/clear$`), UnmarkSolution)
	authed.POST(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/lock$`), SetTopicLock)
	authed.POST(regexp.MustCompile(`^/topics/(?P<topicid>[0-9]+)/pin$`), SetTopicPin)

	authed.POST(regexp.MustCompile(`^/replies/(?P<replyid>[0-9]+)/edit$`), EditReply)
	authed.POST(regexp.MustCompile(`^/replies/(?P<replyid>[0-9]+)/delete$`), SoftDeleteReply)
	authed.POST(regexp.MustCompile(`^/replies/(?P<replyid>[0-9]+)/purge$`), HardDeleteReply)
	authed.POST(regexp.MustCompile(`^/replies/(?P<replyid>[0-9]+)/vote$`), VoteReply)

	routes.AnyMethod(regexp.MustCompile(`^`), FourOhFour)

	return router
}

// Routes for the private address only: cache and perf statistics, and pprof.
func NewPrivateRoutes(svc *discuss.Service, perfCollector *perf.PerfCollector) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			withService(svc),
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
		},
	}

	routes.GET(regexp.MustCompile(`^/debug/cache$`), DebugCache)
	routes.GET(regexp.MustCompile(`^/debug/perf$`), func(c *RequestContext) ResponseData {
		c.PerfCollector = perfCollector
		return DebugPerf(c)
	})
	// net/http/pprof registers itself on the default mux.
	routes.AnyMethod(regexp.MustCompile(`^/debug/pprof`), func(c *RequestContext) ResponseData {
		http.DefaultServeMux.ServeHTTP(c.Res, c.Req)
		return ResponseData{hijacked: true}
	})
	routes.AnyMethod(regexp.MustCompile(`^`), FourOhFour)

	return router
}
