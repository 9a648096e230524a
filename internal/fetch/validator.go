package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Result is the outcome of a reachability check.
type Result struct {
	StatusCode int
	URL        string
}

func (r Result) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Validator checks that an asset exists without transferring its body.
type Validator struct {
	client  *http.Client
	timeout time.Duration
}

func NewValidator(client *http.Client, timeout time.Duration) *Validator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Validator{client: client, timeout: timeout}
}

func (v *Validator) Check(ctx context.Context, url string) (Result, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Result{URL: url}, errors.Wrapf(err, "invalid url %q", url)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{URL: url}, errors.Wrapf(err, "HEAD %s", url)
	}
	defer resp.Body.Close()

	return Result{StatusCode: resp.StatusCode, URL: url}, nil
}
