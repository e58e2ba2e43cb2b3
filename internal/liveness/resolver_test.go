package liveness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlpeters/bookmark-enricher/internal/bookmark"
)

type fakeFetcher struct {
	res   *bookmark.FetchResult
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) *bookmark.FetchResult {
	f.calls++
	return f.res
}

type fakeRenderer struct {
	res   *bookmark.FetchResult
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) *bookmark.FetchResult {
	f.calls++
	return f.res
}

func TestResolveFetchSucceeds(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{res: &bookmark.FetchResult{
		FinalURL:   "https://example.com/",
		StatusCode: 200,
		Body:       []byte("<html>plain</html>"),
	}}
	renderer := &fakeRenderer{res: &bookmark.FetchResult{
		FinalURL:   "https://should-not-be-used.example/",
		StatusCode: 200,
		Body:       []byte("rendered"),
	}}

	out := New(fetcher, renderer, zap.NewNop()).Resolve(context.Background(), "https://example.com")

	require.NoError(t, out.Validate())
	require.True(t, out.Live)
	require.Equal(t, bookmark.MethodFetch, out.Method)
	require.Equal(t, "https://example.com/", out.FinalURL)
	require.Equal(t, []byte("<html>plain</html>"), out.Content)
	require.Equal(t, 1, fetcher.calls)
	require.Zero(t, renderer.calls, "renderer must not run when fetch succeeds")
}

func TestResolveFallsBackToRender(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{res: nil}
	renderer := &fakeRenderer{res: &bookmark.FetchResult{
		FinalURL:   "https://spa.example/app",
		StatusCode: 200,
		Body:       []byte("<html>spa</html>"),
	}}

	out := New(fetcher, renderer, zap.NewNop()).Resolve(context.Background(), "https://spa.example/app")

	require.NoError(t, out.Validate())
	require.True(t, out.Live)
	require.Equal(t, bookmark.MethodRender, out.Method)
	require.Equal(t, "https://spa.example/app", out.FinalURL)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, 1, renderer.calls)
}

func TestResolveAllProbesFail(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	renderer := &fakeRenderer{}

	out := New(fetcher, renderer, zap.NewNop()).Resolve(context.Background(), "https://gone.example/")

	require.NoError(t, out.Validate())
	require.False(t, out.Live)
	require.Equal(t, bookmark.MethodNone, out.Method)
	require.Empty(t, out.FinalURL)
	require.Zero(t, out.StatusCode)
	require.Nil(t, out.Content)
}

func TestResolveWithoutRenderer(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	out := New(fetcher, nil, zap.NewNop()).Resolve(context.Background(), "https://gone.example/")

	require.False(t, out.Live)
	require.Equal(t, bookmark.MethodNone, out.Method)
	require.Equal(t, 1, fetcher.calls)
}
