package bookmark

import "fmt"

// Method identifies which acquisition path produced a liveness outcome.
type Method string

const (
	// MethodFetch means the plain HTTP fetcher succeeded.
	MethodFetch Method = "fetch"
	// MethodRender means the headless browser fallback succeeded.
	MethodRender Method = "render"
	// MethodNone means every probe failed; the bookmark is offline.
	MethodNone Method = "none"
)

// FetchResult is what a single successful acquisition attempt yields,
// whether it came from the HTTP fetcher or the renderer. Absence of a
// result is expressed as a nil *FetchResult, never as an error.
type FetchResult struct {
	// FinalURL is the URL after following redirects.
	FinalURL string
	// StatusCode is the terminal HTTP status, or the inferred one when
	// the renderer never observed a document response.
	StatusCode int
	// Body is the retrieved markup. Non-nil on success even when the
	// response body was empty.
	Body []byte
}

// LivenessOutcome is the resolver's verdict for one URL. Every
// populated field comes from the single method that succeeded; a dead
// outcome carries only zero values.
type LivenessOutcome struct {
	Live       bool
	Method     Method
	FinalURL   string
	StatusCode int
	Content    []byte
}

// Dead is the outcome for a URL no probe could reach.
func Dead() LivenessOutcome {
	return LivenessOutcome{Live: false, Method: MethodNone}
}

// FromResult builds a live outcome from a successful acquisition.
func FromResult(method Method, res *FetchResult) LivenessOutcome {
	return LivenessOutcome{
		Live:       true,
		Method:     method,
		FinalURL:   res.FinalURL,
		StatusCode: res.StatusCode,
		Content:    res.Body,
	}
}

// Validate checks the cross-field invariants the rest of the pipeline
// relies on. It is used by tests and by the resolver's own sanity
// checks rather than sprinkling the rules everywhere.
func (o LivenessOutcome) Validate() error {
	switch o.Method {
	case MethodFetch, MethodRender:
		if !o.Live {
			return fmt.Errorf("method %q requires a live outcome", o.Method)
		}
		if o.FinalURL == "" {
			return fmt.Errorf("live outcome missing final URL")
		}
		if o.StatusCode == 0 {
			return fmt.Errorf("live outcome missing status code")
		}
		if o.Content == nil {
			return fmt.Errorf("live outcome missing content")
		}
	case MethodNone:
		if o.Live {
			return fmt.Errorf("dead outcome marked live")
		}
		if o.FinalURL != "" || o.StatusCode != 0 || o.Content != nil {
			return fmt.Errorf("dead outcome carries residual fields")
		}
	default:
		return fmt.Errorf("unknown liveness method %q", o.Method)
	}
	return nil
}
