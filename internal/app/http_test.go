package app

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, a *App) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: a.handler()}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func get(t *testing.T, c *fasthttp.Client, method, path string) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://health" + path)
	req.Header.SetMethod(method)
	require.NoError(t, c.Do(req, resp))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func TestStatusEndpoints(t *testing.T) {
	a := &App{version: "1.2.3"}
	a.state.Store("running")
	c := serve(t, a)

	for _, path := range []string{"/", "/ping"} {
		code, body := get(t, c, fasthttp.MethodGet, path)
		assert.Equal(t, fasthttp.StatusOK, code, path)
		var st status
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, "ok", st.Status)
		assert.Equal(t, "running", st.State)
		assert.Equal(t, "1.2.3", st.Version)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	c := serve(t, &App{})
	code, body := get(t, c, fasthttp.MethodGet, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, code)
	assert.Contains(t, string(body), "relaybot_uptime_seconds")
}

func TestUnknownPathAndMethod(t *testing.T) {
	c := serve(t, &App{})
	code, _ := get(t, c, fasthttp.MethodGet, "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, code)

	code, _ = get(t, c, fasthttp.MethodPost, "/ping")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, code)
}

func TestStatusDefaultsVersion(t *testing.T) {
	c := serve(t, &App{})
	_, body := get(t, c, fasthttp.MethodGet, "/")
	var st status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "dev", st.Version)
	assert.Empty(t, st.State)
}
