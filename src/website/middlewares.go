package website

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"git.handmade.network/hmn/discuss/src/discuss"
	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/oops"
	"git.handmade.network/hmn/discuss/src/perf"
	"github.com/go-playground/validator/v10"
)

// Set by the authenticating gateway in front of this service.
const UserHeader = "X-Discuss-User"

var validate = newValidator()

// The `content` tag limits post bodies by bytes, the same way the service
// counts them. The built-in max tag counts runes.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("content", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= discuss.MaxContentLength
	})
	if err != nil {
		panic(oops.New(err, "failed to register content validation"))
	}
	return v
}

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(error)
				var err error
				if ok {
					err = oops.New(maybeError, "request panicked")
				} else {
					err = oops.New(nil, "Recovered from panic with value: %v", recovered)
				}
				res = c.ErrorResponse(err)
			}
		}()

		return h(c)
	}
}

func trackRequestPerf(perfCollector *perf.PerfCollector) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
			c.PerfCollector = perfCollector
			c.SetContext(perf.AttachPerf(c.ctx, c.Perf))
			defer func() {
				c.Perf.EndRequest()
				log := logging.Debug()
				blockStack := make([]time.Time, 0)
				for i, block := range c.Perf.Blocks {
					for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
						blockStack = blockStack[:len(blockStack)-1]
					}
					log.Str(fmt.Sprintf("[%4.d] At %9.2fms", i, c.Perf.MsFromStart(&block)), fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()))
					blockStack = append(blockStack, block.End)
				}
				log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.End.Sub(c.Perf.Start).Nanoseconds())/1000/1000))
				if perfCollector != nil {
					perfCollector.SubmitRun(c.Perf)
				}
			}()

			return h(c)
		}
	}
}

// Makes the service available to handlers and gives every request a logger
// carrying its route.
func withService(svc *discuss.Service) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			c.Discuss = svc
			logger := c.Logger.With().Str("route", c.Route).Logger()
			c.Logger = &logger
			c.SetContext(logging.AttachLoggerToContext(c.Logger, c.ctx))
			return h(c)
		}
	}
}

// Bounds the whole request, lock waits included.
func requestTimeout(d time.Duration) Middleware {
	return func(h Handler) Handler {
		return func(c *RequestContext) ResponseData {
			if d <= 0 {
				return h(c)
			}
			ctx, cancel := context.WithTimeout(c.ctx, d)
			defer cancel()
			c.SetContext(ctx)
			return h(c)
		}
	}
}

// Reads the acting user if one was forwarded. A malformed header is an error
// even on routes that allow anonymous access.
func readUser(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		raw := c.Req.Header.Get(UserHeader)
		if raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil || id <= 0 {
				return c.ErrorResponse(errUnauthenticated)
			}
			c.CurrentUserID = id
			logger := c.Logger.With().Int("user", id).Logger()
			c.Logger = &logger
			c.SetContext(logging.AttachLoggerToContext(c.Logger, c.ctx))
		}
		return h(c)
	}
}

func needsUser(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		if c.CurrentUserID == 0 {
			return c.ErrorResponse(errUnauthenticated)
		}
		return h(c)
	}
}

func logContextErrors(c *RequestContext, errs ...error) {
	for _, err := range errs {
		c.Logger.Error().Timestamp().Stack().Str("Requested", c.Req.URL.String()).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.Errors...)
		return res
	}
}

