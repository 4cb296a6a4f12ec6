// Package remote lê entidades direto do indexador por HTTP, com retry exponencial.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radieske/tournament-mirror-poc/internal/mirror/chain/dto"
	"github.com/radieske/tournament-mirror-poc/internal/mirror/model"
)

var errServer = errors.New("indexer server error")

type Fetcher struct {
	BaseURL string
	HTTP    *http.Client

	maxTries uint
	maxWait  time.Duration
	initial  time.Duration
	log      *zap.Logger
}

type Option func(*Fetcher)

// WithRetry limita as tentativas e o tempo total de uma leitura
func WithRetry(tries uint, maxElapsed time.Duration) Option {
	return func(f *Fetcher) {
		f.maxTries = tries
		f.maxWait = maxElapsed
	}
}

// WithInitialInterval define o primeiro intervalo do backoff (usado em testes)
func WithInitialInterval(d time.Duration) Option {
	return func(f *Fetcher) { f.initial = d }
}

func WithLogger(l *zap.Logger) Option { return func(f *Fetcher) { f.log = l } }

func New(base string, opts ...Option) *Fetcher {
	f := &Fetcher{
		BaseURL:  base,
		HTTP:     &http.Client{Timeout: 3 * time.Second},
		maxTries: 5,
		maxWait:  10 * time.Second,
		initial:  200 * time.Millisecond,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch lê a entidade. 404 é permanente (model.ErrNotFound); 5xx e erros de rede são
// repetidos com backoff; uma entidade removida remotamente volta com payload nil.
func (f *Fetcher) Fetch(ctx context.Context, id model.ID) (model.Payload, model.Version, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initial

	out, err := backoff.Retry(ctx, func() (dto.EntityResponse, error) {
		return f.fetchOnce(ctx, id)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxTries),
		backoff.WithMaxElapsedTime(f.maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.log.Debug("indexer fetch retry", zap.String("entity", string(id)), zap.Duration("next", next), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", id, err)
	}
	if out.Deleted {
		return nil, model.Version(out.Version), nil
	}
	return model.Payload(out.Payload), model.Version(out.Version), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, id model.ID) (dto.EntityResponse, error) {
	var out dto.EntityResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/entities/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return out, backoff.Permanent(err)
	}
	res, err := f.HTTP.Do(req)
	if err != nil {
		return out, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return out, backoff.Permanent(model.ErrNotFound)
	case res.StatusCode == http.StatusTooManyRequests:
		if s := res.Header.Get("Retry-After"); s != "" {
			if secs, perr := strconv.Atoi(s); perr == nil {
				return out, backoff.RetryAfter(secs)
			}
		}
		return out, fmt.Errorf("%w: http %d", errServer, res.StatusCode)
	case res.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, res.Body)
		return out, fmt.Errorf("%w: http %d", errServer, res.StatusCode)
	case res.StatusCode >= 300:
		return out, backoff.Permanent(fmt.Errorf("indexer http %d", res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, backoff.Permanent(fmt.Errorf("decode entity: %w", err))
	}
	return out, nil
}
