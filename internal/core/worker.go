package core

// worker.go isolates one import job. A worker goroutine owns its own store
// connection and reports through a channel of Messages. The channel always
// carries exactly one complete or error message and is then closed.

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/JonMunkholm/policyingest/internal/logging"
	"github.com/JonMunkholm/policyingest/internal/metrics"
)

// SuccessMessage is the caller-facing message of a completed job.
const SuccessMessage = "File processed successfully"

// ErrWorkerExited is the response error when a stream closes without a terminal message.
const ErrWorkerExited = "worker exited without result"

// storeCloseTimeout bounds how long a worker waits for its connection to close.
const storeCloseTimeout = 5 * time.Second

// Job is the input of one isolated import.
type Job struct {
	ID          string // for logs; optional
	FilePath    string // uploaded file, removed when the job ends
	StoreTarget string // connection string handed to the StoreOpener
}

// Spawn starts a worker for job and returns its message stream. The caller
// must read until the channel is closed; Await does that.
// ctx is only checked between rows so that server shutdown can stop a batch.
func Spawn(ctx context.Context, job Job, open StoreOpener) <-chan Message {
	out := make(chan Message, 16)
	go runWorker(ctx, job, open, out)
	return out
}

func runWorker(ctx context.Context, job Job, open StoreOpener, out chan<- Message) {
	defer close(out)

	if job.ID != "" && logging.JobID(ctx) == "" {
		ctx = logging.WithJobID(ctx, job.ID)
	}
	log := logging.WithFields(ctx, "file", filepath.Base(job.FilePath))
	started := time.Now()
	result := metrics.ResultCrashed
	metrics.JobStarted()
	defer func() { metrics.JobFinished(result, time.Since(started)) }()

	terminal := false
	send := func(m Message) {
		if terminal {
			return
		}
		terminal = m.Terminal()
		out <- m
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in import worker", "panic", r, "stack", string(debug.Stack()))
			removeSource(job.FilePath, log)
			send(errorMessage(fmt.Errorf("internal error: %v", r)))
		}
	}()

	store, err := open(ctx, job.StoreTarget)
	if err != nil {
		log.Error("open store", "error", err)
		removeSource(job.FilePath, log)
		send(errorMessage(fmt.Errorf("open store: %w", err)))
		result = metrics.ResultError
		return
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeCloseTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("close store", "error", err)
		}
	}()

	msg := ProcessFile(ctx, job.FilePath, store, send, log)
	send(msg)
	result = string(msg.Type)
}

// Await reads ch until its terminal message and converts the stream into a
// Response. Progress texts are collected in order. If ctx ends first the rest
// of the stream is drained in the background.
func Await(ctx context.Context, ch <-chan Message) Response {
	var progress []string
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return Response{Error: ctx.Err().Error()}
		case m, ok := <-ch:
			if !ok {
				return Response{Error: ErrWorkerExited}
			}
			switch m.Type {
			case MessageProgress:
				progress = append(progress, m.Message)
			case MessageComplete:
				return Response{
					Success:   true,
					Message:   SuccessMessage,
					Processed: m.Processed,
					Total:     m.Total,
					Errors:    m.Errors,
					Progress:  progress,
				}
			case MessageError:
				go drain(ch)
				return Response{Error: m.Error}
			}
		}
	}
}

func drain(ch <-chan Message) {
	for range ch {
	}
}
