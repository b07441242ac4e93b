package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/betterdocs/dashboard/internal/store"
	"github.com/betterdocs/dashboard/internal/telemetry"
)

const chunkSize = 4096

// Relay tees one upstream event stream to an outbound sink. Forwarding is
// unconditional and never waits on decode or persistence; the completion step
// runs only after the upstream stream has fully closed.
type Relay struct {
	docs   store.DocsRepository
	logger *zap.Logger
}

// New wires the Persistence Gateway and logger. docs may be nil, in which
// case every run is pure passthrough.
func New(docs store.DocsRepository, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{docs: docs, logger: logger}
}

// Run forwards upstream to sink until EOF or error. When sess.Owner is set,
// the stream is additionally accumulated and, at natural close, scanned for
// the terminal done frame; a successful persist appends one synthesized saved
// frame after all upstream bytes. Run never writes to the sink after
// returning, so the caller may close it immediately.
//
// On upstream read error or context cancellation Run returns the error
// without invoking persistence. Completion-step failures never propagate:
// the content already reached the client, so the only client-visible signal
// is the presence or absence of the saved frame.
func (r *Relay) Run(ctx context.Context, upstream io.Reader, sink io.Writer, sess Session) error {
	var capture *strings.Builder
	if sess.Owner != "" && r.docs != nil {
		capture = &strings.Builder{}
	}
	flusher, _ := sink.(http.Flusher)

	start := time.Now()
	var relayed int64
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			telemetry.ObserveRelay("canceled", relayed, time.Since(start))
			return err
		}
		n, err := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := sink.Write(chunk); werr != nil {
				telemetry.ObserveRelay("sink_error", relayed, time.Since(start))
				return fmt.Errorf("write to sink: %w", werr)
			}
			if flusher != nil {
				flusher.Flush()
			}
			relayed += int64(n)
			if capture != nil {
				capture.Write(chunk)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			telemetry.ObserveRelay("upstream_error", relayed, time.Since(start))
			return fmt.Errorf("read upstream: %w", err)
		}
	}

	if capture != nil {
		r.complete(ctx, capture.String(), sess, sink, flusher)
	}
	telemetry.ObserveRelay("ok", relayed, time.Since(start))
	return nil
}

// complete fires at most once per relay lifetime, after upstream close.
func (r *Relay) complete(ctx context.Context, text string, sess Session, sink io.Writer, flusher http.Flusher) {
	raw, ok := findDoneResult(text)
	if !ok {
		r.logger.Debug("stream closed without a done frame", zap.String("repo", sess.RepoName))
		return
	}
	var payload DonePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		r.logger.Warn("done payload is not valid JSON",
			zap.String("repo", sess.RepoName),
			zap.Error(err),
		)
		return
	}
	if len(payload.Docs) == 0 || string(payload.Docs) == "null" {
		r.logger.Warn("done payload has no docs field", zap.String("repo", sess.RepoName))
		return
	}

	doc, err := r.docs.Upsert(ctx, sess.Owner, sess.RepoURL, sess.RepoName, payload.Docs)
	if err != nil {
		telemetry.ObservePersist(false)
		r.logger.Error("persist generated docs failed",
			zap.String("repo", sess.RepoName),
			zap.Error(err),
		)
		return
	}
	telemetry.ObservePersist(true)

	saved, err := json.Marshal(SavedPayload{Slug: doc.Slug, RepoName: sess.RepoName})
	if err != nil {
		r.logger.Error("marshal saved payload failed", zap.Error(err))
		return
	}
	if _, err := sink.Write(Frame{Kind: KindSaved, Payload: saved}.Encode()); err != nil {
		r.logger.Warn("write saved frame failed", zap.Error(err))
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
	r.logger.Info("generated docs persisted",
		zap.String("slug", doc.Slug),
		zap.String("repo", sess.RepoName),
	)
}
