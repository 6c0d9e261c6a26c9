package logger

import (
	"strings"

	"github.com/valyala/fasthttp"
)

var sensitiveHeaders = []string{"authorization", "cookie", "x-telegram-bot-api-secret-token"}

func redactHeaderValue(key, val string) string {
	k := strings.ToLower(key)
	for _, s := range sensitiveHeaders {
		if k == s {
			return "<redacted>"
		}
	}
	return val
}

// SafeHeadersFast builds a redacted header string for fasthttp requests.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		parts = append(parts, key+"="+redactHeaderValue(key, string(v)))
	})
	return strings.Join(parts, "; ")
}

// LogRequestFast logs a concise, safe summary of an incoming fasthttp request.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	Debug("incoming_request", "method", string(ctx.Method()), "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String(), "headers", SafeHeadersFast(ctx))
}

// RedactToken hides a bot token embedded in a Bot API URL or error string.
func RedactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}
