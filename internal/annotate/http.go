package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/roach88/posepipe/internal/frame"
)

// HTTPConfig configures the pose-estimation client.
type HTTPConfig struct {
	// Endpoint receives a POST with the PNG-encoded frame.
	Endpoint string

	// Timeout bounds one attempt. Zero means 30s.
	Timeout time.Duration

	// RetryMax is the number of retries after the first attempt.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Draw renders the returned skeletons onto a copy of the frame.
	Draw bool
}

// DefaultHTTPConfig returns the client defaults for endpoint.
func DefaultHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint:     endpoint,
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		Draw:         true,
	}
}

// poseResponse is the body returned by the inference service.
type poseResponse struct {
	Poses []frame.Pose `json:"poses"`
}

// HTTPAnnotator runs pose estimation on a remote service.
//
// Each worker owns its own HTTPAnnotator and therefore its own connection
// pool. The limiter may be shared between workers to cap the request rate
// sent to the service.
type HTTPAnnotator struct {
	worker  int
	cfg     HTTPConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

// NewHTTPAnnotator creates the client for one worker. A nil limiter means
// unlimited.
func NewHTTPAnnotator(worker int, cfg HTTPConfig, limiter *rate.Limiter) (*HTTPAnnotator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("annotate: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil // Retries are reported through slog below
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			slog.Debug("retrying inference request",
				"worker", worker,
				"attempt", attempt,
				"index", req.Header.Get("X-Frame-Index"))
		}
	}

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &HTTPAnnotator{
		worker:  worker,
		cfg:     cfg,
		client:  client,
		limiter: limiter,
	}, nil
}

// NewLimiter returns a limiter allowing rps requests per second, or an
// unlimited one when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// HTTPFactory returns a Factory building one HTTPAnnotator per worker, all
// sharing limiter.
func HTTPFactory(cfg HTTPConfig, limiter *rate.Limiter) Factory {
	return func(worker int) (Annotator, error) {
		return NewHTTPAnnotator(worker, cfg, limiter)
	}
}

// Apply implements Annotator.
func (a *HTTPAnnotator) Apply(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error) {
	index, _ := frame.IndexFromContext(ctx)
	if f.Image == nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindEncode, Index: index, Err: fmt.Errorf("frame has no image")}
	}

	var body bytes.Buffer
	if err := png.Encode(&body, f.Image); err != nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindEncode, Index: index, Err: err}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return frame.AnnotatedFrame{}, fmt.Errorf("rate limit: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, body.Bytes())
	if err != nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindRequest, Index: index, Err: err}
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Frame-Index", strconv.FormatUint(index, 10))

	resp, err := a.client.Do(req)
	if err != nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindRequest, Index: index, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return frame.AnnotatedFrame{}, &Error{
			Kind:  KindStatus,
			Index: index,
			Err:   fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)),
		}
	}

	var pr poseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindDecode, Index: index, Err: err}
	}
	if err := validatePoses(pr.Poses); err != nil {
		return frame.AnnotatedFrame{}, &Error{Kind: KindDecode, Index: index, Err: err}
	}

	out := frame.AnnotatedFrame{Image: f.Image, Poses: pr.Poses}
	if a.cfg.Draw {
		out.Image = Overlay(f.Image, pr.Poses)
	}
	return out, nil
}

// validatePoses rejects keypoints the overlay cannot place.
func validatePoses(poses []frame.Pose) error {
	for i, p := range poses {
		for _, kp := range p.Keypoints {
			if !frame.IsKeypointName(kp.Name) {
				return fmt.Errorf("pose %d: unknown keypoint %q", i, kp.Name)
			}
			if !finite(kp.X, kp.Y, kp.Score) {
				return fmt.Errorf("pose %d: keypoint %q has a non-finite coordinate", i, kp.Name)
			}
		}
	}
	return nil
}

// Close releases idle connections.
func (a *HTTPAnnotator) Close() error {
	a.client.HTTPClient.CloseIdleConnections()
	return nil
}
