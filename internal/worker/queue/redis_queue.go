package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job statuses stored with each outcome.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ErrNotFound is returned by Result when no outcome is stored for an id.
var ErrNotFound = stderrors.New("queue: result not found")

// Job is the envelope producers push onto the list.
type Job struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// Outcome is what consumers store once a job has finished.
type Outcome struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output any      `json:"output,omitempty"`
	Error  *Failure `json:"error,omitempty"`
}

type Failure struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// MalformedError reports a list entry that is not a Job envelope.
type MalformedError struct {
	Raw string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("queue: malformed job envelope: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

type Config struct {
	Addr         string
	Password     string
	DB           int
	QueueName    string
	ResultPrefix string
	ResultTTL    time.Duration
}

type RedisQueue struct {
	rdb          *redis.Client
	queueName    string
	resultPrefix string
	resultTTL    time.Duration
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return NewRedisQueue(rdb, cfg.QueueName, cfg.ResultPrefix, cfg.ResultTTL), nil
}

func NewRedisQueue(rdb *redis.Client, queueName, resultPrefix string, resultTTL time.Duration) *RedisQueue {
	return &RedisQueue{
		rdb:          rdb,
		queueName:    queueName,
		resultPrefix: resultPrefix,
		resultTTL:    resultTTL,
	}
}

// Pop blocks up to wait for the next job (BRPOP). It returns nil, nil when
// the wait elapses with the list empty.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}
	return DecodeJob(res[1])
}

// Push enqueues a job at the head of the list; Pop takes from the tail.
func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueName, b).Err()
}

// StoreResult writes the outcome under ResultKey(id) with the configured TTL.
func (q *RedisQueue) StoreResult(ctx context.Context, out Outcome) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.ResultKey(out.ID), b, q.resultTTL).Err()
}

// Result reads a stored outcome.
func (q *RedisQueue) Result(ctx context.Context, id string) (*Outcome, error) {
	b, err := q.rdb.Get(ctx, q.ResultKey(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var out Outcome
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *RedisQueue) ResultKey(id string) string {
	return q.resultPrefix + id
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}

// DecodeJob parses one list entry.
func DecodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, &MalformedError{Raw: raw, Err: err}
	}
	if job.ID == "" {
		return nil, &MalformedError{Raw: raw, Err: stderrors.New("missing id")}
	}
	return &job, nil
}
