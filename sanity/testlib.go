package sanity

// sanity is a simple testing framework for the io storage service - it allows easy chaining of
// dependent calls by retaining the digest of a previously stored blob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/io/server"
)

type testCtx struct {
	failed       bool
	narrative    []string
	t            *testing.T
	digest       string
	lastResponse *HTTPResp
	server       *server.Server
}

func (tc *testCtx) String() string {
	return strings.Join(tc.narrative, " > ")
}

func (tc *testCtx) PushNarrative(narrative string) *testCtx {
	newTc := *tc
	newTc.narrative = append(tc.narrative, narrative)
	return &newTc
}

// TestCase is a Server API test case that can be recorded and run
type TestCase struct {
	narrative string
	tests     []*APIChain
}

// NewCase starts a test case with a given name
func NewCase(narrative string) *TestCase {
	return &TestCase{narrative: narrative}
}

// HTTPResp wraps an httpResponse with a buffered body
type HTTPResp struct {
	resp *http.Response
	body []byte
}

func (r *HTTPResp) String() string {
	return fmt.Sprintf("code:%d  h: %v  body: %s", r.resp.StatusCode, r.resp.Header, string(r.body))
}

type resultFunc func(ctx *testCtx, response *HTTPResp)

type resultAction struct {
	narrative string
	action    resultFunc
}

// APIChain is an operation on the blob API
type APIChain struct {
	narrative string
	path      string
	method    string
	headers   map[string]string
	body      []byte
	expect    []*resultAction
	cmd       []*APIChain
}

func (tc *testCtx) Errorf(msg string, args ...interface{}) {
	tc.failed = true
	tc.t.Logf("Expectation failed: \n\t\t%s ", strings.Join(tc.narrative, "\n\t\t ->  "))
	tc.t.Logf(msg, args...)
	tc.t.Logf("Last Response was: %v", tc.lastResponse)
	tc.t.Fail()
}

func (tc *testCtx) FailNow() {
	tc.t.FailNow()
}

// With adds a middleware to a test that updates the current command in-place
func (c *APIChain) With(op func(*APIChain)) *APIChain {
	op(c)
	return c
}

// WithHeader appends a header to the current request
func (c *APIChain) WithHeader(k string, v string) *APIChain {
	c.headers[k] = v
	return c
}

// WithAPIKey authenticates the current request
func (c *APIChain) WithAPIKey(key string) *APIChain {
	return c.WithHeader("X-API-Key", key)
}

// WithBodyString sets a raw request body
func (c *APIChain) WithBodyString(data string) *APIChain {
	c.body = []byte(data)
	return c
}

// WithBlobFile wraps payload in a multipart body under the file field
func (c *APIChain) WithBlobFile(payload string) *APIChain {
	buf := bytes.Buffer{}
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "payload.bin")
	if err != nil {
		panic(err)
	}
	if _, err := fw.Write([]byte(payload)); err != nil {
		panic(err)
	}
	if err := mw.Close(); err != nil {
		panic(err)
	}
	c.body = buf.Bytes()
	return c.WithHeader("Content-Type", mw.FormDataContentType())
}

// Expect appends an expectation to the current case
func (c *APIChain) Expect(fn resultFunc, msg string, args ...interface{}) *APIChain {
	c.expect = append(c.expect, &resultAction{fmt.Sprintf(msg, args...), fn})
	return c
}

// ExpectStatus creates an HTTP code expectation
func (c *APIChain) ExpectStatus(status int) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, status, resp.resp.StatusCode, "Http status should be %d", status)
	}, "status matches %d", status)
}

// ExpectServerErr verifies that the server rejected the request with a given error
func (c *APIChain) ExpectServerErr(serverErr *server.Error) *APIChain {
	return c.ExpectStatus(serverErr.HTTPStatus).
		Expect(func(ctx *testCtx, resp *HTTPResp) {
			assert.Equal(ctx, serverErr.Message, jsonField(ctx, resp, "error"))
		}, "error matches %q", serverErr.Message)
}

// ExpectBlobStored verifies that the server returned a digest, retaining it for chained calls
func (c *APIChain) ExpectBlobStored() *APIChain {
	return c.ExpectStatus(200).
		Expect(func(ctx *testCtx, resp *HTTPResp) {
			digest, _ := jsonField(ctx, resp, "sha1").(string)
			require.NotEmpty(ctx, digest, "sha1 must be present in body %s", string(resp.body))
			ctx.digest = digest
		}, "Blob was stored")
}

// ExpectDigest verifies the exact digest the server returned
func (c *APIChain) ExpectDigest(digest string) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, digest, jsonField(ctx, resp, "sha1"))
	}, "digest matches %s", digest)
}

// ExpectExists verifies the exists flag in the response
func (c *APIChain) ExpectExists(exists bool) *APIChain {
	return c.ExpectStatus(200).
		Expect(func(ctx *testCtx, resp *HTTPResp) {
			assert.Equal(ctx, exists, jsonField(ctx, resp, "exists"))
		}, "exists is %v", exists)
}

// ExpectBody verifies the raw response body
func (c *APIChain) ExpectBody(body string) *APIChain {
	return c.Expect(func(ctx *testCtx, resp *HTTPResp) {
		assert.Equal(ctx, body, string(resp.body))
	}, "body matches")
}

// ThenCall chains a dependent call onto the current one
func (c *APIChain) ThenCall(method string, path string) *APIChain {
	newCmd := &APIChain{method: method, path: path, narrative: c.narrative, headers: map[string]string{}}
	c.cmd = append(c.cmd, newCmd)
	return newCmd
}

func (c *APIChain) toReq(ctx *testCtx) *http.Request {
	placeholders := func(key string) string {
		return strings.Replace(key, ":digest", ctx.digest, -1)
	}
	headers := map[string][]string{}

	for k, v := range c.headers {
		headers[http.CanonicalHeaderKey(placeholders(k))] = []string{placeholders(v)}
	}

	u, err := url.Parse(placeholders(c.path))
	require.NoError(ctx, err, " invalid URL ")

	r := &http.Request{
		URL:    u,
		Method: c.method,
		Header: headers,
	}
	if c.body != nil {
		r.Body = io.NopCloser(bytes.NewReader(c.body))
	} else {
		r.Body = io.NopCloser(bytes.NewReader([]byte{}))
	}
	return r
}

func (c *APIChain) run(ctx testCtx, s *server.Server) {
	ctx.server = s
	nuCtx := (&ctx).PushNarrative(c.narrative)

	req := c.toReq(nuCtx)
	resp := httptest.NewRecorder()

	nuCtx = nuCtx.PushNarrative(fmt.Sprintf("%s %s", req.Method, req.URL))

	s.Engine.ServeHTTP(resp, req)
	buf := bytes.Buffer{}
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(ctx.t, err)

	nuCtx.lastResponse = &HTTPResp{resp: resp.Result(), body: buf.Bytes()}

	for _, check := range c.expect {
		nuCtx = nuCtx.PushNarrative(check.narrative)
		check.action(nuCtx, nuCtx.lastResponse)
	}

	for _, cmd := range c.cmd {
		cmd.run(*nuCtx, s)
	}
}

// Call Starts a test tree with an arbitrary HTTP call
func (c *TestCase) Call(description string, method string, path string) *APIChain {
	cmd := &APIChain{narrative: c.narrative + ":" + description, method: method, path: path, headers: map[string]string{}}
	c.tests = append(c.tests, cmd)
	return cmd
}

// StartWithBlob creates a new test tree that first stores a blob
func (c *TestCase) StartWithBlob(description string, payload string, apiKey string) *APIChain {
	return c.Call(description, http.MethodPost, "/api/store").
		WithBlobFile(payload).WithAPIKey(apiKey).ExpectBlobStored()
}

// Run runs a whole test tree.
func (c *TestCase) Run(t *testing.T, server *server.Server) {

	for _, tc := range c.tests {
		t.Run(tc.narrative, func(t *testing.T) {
			ctx := testCtx{t: t}
			tc.run(ctx, server)
		})
	}
}

func jsonField(ctx *testCtx, resp *HTTPResp, field string) interface{} {
	var body map[string]interface{}
	require.NoError(ctx, json.Unmarshal(resp.body, &body), "body: %s", string(resp.body))
	return body[field]
}
