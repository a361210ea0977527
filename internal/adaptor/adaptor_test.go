package adaptor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio/internal/domain"
)

type textOnly struct{}

func (textOnly) GenerateText(_ context.Context, req Request) (*TextResult, error) {
	return &TextResult{Text: "echo: " + req.Prompt.User, Usage: domain.Usage{OutputTokens: 3}}, nil
}

type imageOnly struct{}

func (imageOnly) GenerateImage(context.Context, Request) (*ImageResult, error) {
	return &ImageResult{ImageURL: "https://cdn/a.png", Usage: domain.Usage{Units: 1}}, nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("OpenAI", textOnly{}))
	require.NoError(t, r.Register("qwen", imageOnly{}))
	require.Error(t, r.Register("nothing", struct{}{}))

	impl, err := r.Resolve("openai", domain.CapabilityText)
	require.NoError(t, err)
	assert.NotNil(t, impl)

	_, err = r.Resolve("openai", domain.CapabilityVideo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAdaptorUnavailable))
	assert.Equal(t, "openai", domain.AdaptorIDOf(err))

	_, err = r.Resolve("missing", domain.CapabilityText)
	assert.True(t, errors.Is(err, domain.ErrAdaptorUnavailable))

	assert.Equal(t, []string{"openai", "qwen"}, r.IDs())
}

func TestGenerateDispatch(t *testing.T) {
	req := Request{Prompt: domain.ResolvedPrompt{User: "hello"}}
	res, err := Generate(context.Background(), textOnly{}, domain.CapabilityText, req)
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", res.Text)
	assert.Equal(t, 3, res.Usage.OutputTokens)

	res, err = Generate(context.Background(), imageOnly{}, domain.CapabilityImage, req)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.png", res.Output())

	_, err = Generate(context.Background(), imageOnly{}, domain.CapabilityText, req)
	assert.True(t, errors.Is(err, domain.ErrAdaptorUnavailable))
}

func TestClassifyTransport(t *testing.T) {
	assert.Nil(t, ClassifyTransport(nil))

	wrap := func(err error) error { return &url.Error{Op: "Post", URL: "https://api.example", Err: err} }
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline", context.DeadlineExceeded, domain.ErrAdaptorTimeout},
		{"dial refused", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), domain.ErrProviderUnreachable},
		{"dial other", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}), domain.ErrProviderUnreachable},
		{"dns", wrap(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "api.example"}}), domain.ErrProviderUnreachable},
		{"host unreachable", wrap(syscall.EHOSTUNREACH), domain.ErrProviderUnreachable},
		{"reset on read", wrap(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), domain.ErrProviderFailure},
		{"broken pipe on write", wrap(&net.OpError{Op: "write", Net: "tcp", Err: syscall.EPIPE}), domain.ErrProviderFailure},
		{"unexpected eof", wrap(io.ErrUnexpectedEOF), domain.ErrProviderFailure},
		{"eof", wrap(io.EOF), domain.ErrProviderFailure},
		{"other", errors.New("weird"), domain.ErrProviderFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyTransport(tc.err)
			assert.ErrorIs(t, got, tc.want)
			if tc.want != domain.ErrProviderUnreachable {
				assert.False(t, domain.IsBatchFatal(got), "transient failure must not abort the batch")
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.True(t, errors.Is(ClassifyStatus("gemini", http.StatusForbidden, "bad key"), domain.ErrAdaptorUnavailable))
	assert.True(t, errors.Is(ClassifyStatus("gemini", http.StatusGatewayTimeout, ""), domain.ErrAdaptorTimeout))
	assert.True(t, errors.Is(ClassifyStatus("gemini", http.StatusTooManyRequests, ""), domain.ErrProviderFailure))
}
