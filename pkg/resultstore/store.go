// Package resultstore persists the summaries of finished runs so batches
// can be resumed and re-aggregated.
package resultstore

import (
	"context"
	"errors"
	"time"

	"github.com/logflow/tracesim/pkg/config"
	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// ErrNotFound is returned when no result is stored for a run.
var ErrNotFound = errors.New("resultstore: run not found")

// RunResult is the stored outcome of one run.
type RunResult struct {
	BatchID string `json:"batch_id"`
	Run     int    `json:"run"`
	SimPath string `json:"sim_path"`
	Seed    int64  `json:"seed"`

	JWMean float64 `json:"jw_mean"`
	DLMean float64 `json:"dl_mean"`
	MAE    float64 `json:"mae"`
	DLTime float64 `json:"dl_time"`
	Traces int     `json:"traces"`

	FinishedAt time.Time `json:"finished_at"`
}

// Store persists run results.
type Store interface {
	// Save stores r, replacing any earlier result of the same run.
	Save(ctx context.Context, r *RunResult) error

	// Load returns ErrNotFound when the run has no result.
	Load(ctx context.Context, batchID string, run int) (*RunResult, error)

	// List returns the results of a batch ordered by run number.
	List(ctx context.Context, batchID string) ([]*RunResult, error)

	// Batches returns the known batch ids in lexical order.
	Batches(ctx context.Context) ([]string, error)

	Close() error
}

// New opens the backend selected by cfg.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "none":
		return NopStore{}, nil
	case "file":
		fs, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "redis":
		rc := DefaultRedisConfig(cfg.RedisAddr)
		rc.Password = cfg.RedisPassword
		rc.Database = cfg.RedisDB
		if cfg.RedisPrefix != "" {
			rc.Prefix = cfg.RedisPrefix
		}
		rc.TTL = cfg.RedisTTL
		rs, err := NewRedisStore(rc)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, tserrors.New(tserrors.CodeInvalidConfig, "unknown result store backend").
			WithContext("backend", cfg.Backend)
	}
}

// NopStore keeps nothing.
type NopStore struct{}

func (NopStore) Save(context.Context, *RunResult) error { return nil }

func (NopStore) Load(context.Context, string, int) (*RunResult, error) { return nil, ErrNotFound }

func (NopStore) List(context.Context, string) ([]*RunResult, error) { return nil, nil }

func (NopStore) Batches(context.Context) ([]string, error) { return nil, nil }

func (NopStore) Close() error { return nil }
