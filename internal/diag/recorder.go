package diag

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// bodies of login requests carry credentials and are never recorded
const loginPath = "/api/v1/tokens"

// Exchange is one request/response pair seen by the Recorder.
type Exchange struct {
	Method       string
	URL          string
	Status       int
	RequestBody  []byte
	ResponseBody []byte
	Duration     time.Duration
	Err          error
	At           time.Time
}

// Recorder is a RoundTripper that copies every exchange into a channel.
type Recorder struct {
	next      http.RoundTripper
	exchanges chan Exchange

	mu     sync.RWMutex
	closed bool
}

// NewRecorder wraps next. The returned channel is closed by Close.
func NewRecorder(next http.RoundTripper, buffer int) (*Recorder, chan Exchange) {
	if next == nil {
		next = http.DefaultTransport
	}
	r := &Recorder{
		next:      next,
		exchanges: make(chan Exchange, buffer),
	}
	return r, r.exchanges
}

func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	ex := Exchange{Method: req.Method, URL: req.URL.String(), At: time.Now()}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		if !strings.HasSuffix(req.URL.Path, loginPath) {
			ex.RequestBody = body
		}
	}

	resp, err := r.next.RoundTrip(req)
	ex.Duration = time.Since(ex.At)
	if err != nil {
		ex.Err = err
		r.publish(ex)
		return nil, err
	}

	ex.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		ex.Err = err
		r.publish(ex)
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if !strings.HasSuffix(req.URL.Path, loginPath) {
		ex.ResponseBody = body
	}
	r.publish(ex)

	return resp, nil
}

func (r *Recorder) publish(ex Exchange) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.exchanges <- ex:
	default:
		zap.S().Debugw("exchange dropped", "method", ex.Method, "url", ex.URL)
	}
}

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.exchanges)
	}
}
