// Package server accepts peer connections and runs each transfer through
// storage, detection and annotation before answering on the same connection.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/andresmejia3/facedetector/internal/annotate"
	"github.com/andresmejia3/facedetector/internal/detect"
	"github.com/andresmejia3/facedetector/internal/protocol"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/types"
	"github.com/andresmejia3/facedetector/internal/utils"
	"github.com/andresmejia3/facedetector/internal/worker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// errorWriteTimeout bounds the best-effort ERRO frame sent before a disconnect.
const errorWriteTimeout = 2 * time.Second

// Config holds the dispatcher settings.
type Config struct {
	Addr         string
	Workers      int
	Backlog      int
	ReadTimeout  time.Duration // longest wait for read progress; 0 disables
	WriteTimeout time.Duration // longest wait for write progress; 0 disables
	Limits       protocol.Limits
}

// Detector runs detection over a stored payload.
type Detector interface {
	ProcessFile(path string) detect.Result
}

// Recorder receives the audit trail of every session and transfer.
type Recorder interface {
	RecordSession(ctx context.Context, s types.Session) error
	RecordTransfer(ctx context.Context, r types.TransferRecord) error
}

// NopRecorder discards everything. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) RecordSession(context.Context, types.Session) error { return nil }

func (NopRecorder) RecordTransfer(context.Context, types.TransferRecord) error { return nil }

// Server is the connection dispatcher.
type Server struct {
	cfg      Config
	detector Detector
	store    *storage.Storage
	writer   *annotate.Writer
	recorder Recorder
	log      *logrus.Logger
}

// New wires a dispatcher. A nil recorder or logger falls back to a no-op
// recorder and the standard logrus logger.
func New(cfg Config, d Detector, store *storage.Storage, rec Recorder, log *logrus.Logger) *Server {
	if rec == nil {
		rec = NopRecorder{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Limits == (protocol.Limits{}) {
		cfg.Limits = protocol.DefaultLimits()
	}
	return &Server{
		cfg:      cfg,
		detector: d,
		store:    store,
		writer:   annotate.NewWriter(store),
		recorder: rec,
		log:      log,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln and hands them to the worker pool. The
// pool queue holds at most Backlog pending connections; past that the accept
// loop blocks and the kernel queue absorbs further connects. When ctx is
// cancelled the listener and every live connection are closed and Serve
// returns once all workers have exited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool[net.Conn](s.cfg.Workers, s.cfg.Backlog)
	pool.Start(ctx, s.handleConn)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.log.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"workers": pool.Size(),
		"backlog": s.cfg.Backlog,
	}).Info("Listening for connections")

	var err error
	for {
		conn, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(aerr, &ne) && ne.Timeout() {
				continue
			}
			err = aerr
			break
		}
		s.log.WithField("peer", conn.RemoteAddr().String()).Debug("Connection accepted")
		if serr := pool.Submit(ctx, conn); serr != nil {
			conn.Close()
			break
		}
	}

	// Closes the live connections through their AfterFunc hooks.
	cancel()
	pool.Close()
	pool.Wait()
	s.log.Info("Server stopped")
	return err
}

func (s *Server) handleConn(ctx context.Context, workerID int, conn net.Conn) {
	defer conn.Close()

	sess := types.Session{
		ID:      uuid.NewString(),
		Peer:    conn.RemoteAddr().String(),
		Started: time.Now(),
	}
	log := s.log.WithFields(logrus.Fields{
		"session": sess.ID,
		"peer":    sess.Peer,
		"worker":  workerID,
	})

	if ctx.Err() != nil {
		log.Debug("Dropping queued connection on shutdown")
		return
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Info("Session started")
	err := s.serveSession(ctx, conn, &sess, log)
	elapsed := time.Since(sess.Started)

	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"transfers": sess.Ordinal, "elapsed": elapsed}).Info("Session finished")
	case ctx.Err() != nil:
		log.WithError(err).Warn("Session interrupted by shutdown")
	default:
		log.WithError(err).Warn("Session aborted")
		s.sendError(conn, err, log)
	}
}

func (s *Server) serveSession(ctx context.Context, conn net.Conn, sess *types.Session, log *logrus.Entry) error {
	n, err := protocol.ReadCount(s.idle(conn))
	if err != nil {
		return err
	}
	sess.Expected = n
	if err := s.recorder.RecordSession(ctx, *sess); err != nil {
		log.WithError(err).Warn("Failed to record session")
	}
	log.WithField("expected", n).Debug("Transfer count received")

	for i := uint32(1); i <= n; i++ {
		sess.Ordinal = int(i)
		if err := s.serveTransfer(ctx, conn, sess, log); err != nil {
			return err
		}
	}
	return nil
}

// serveTransfer handles one transfer end to end. The next transfer is only
// read after this response has been written.
func (s *Server) serveTransfer(ctx context.Context, conn net.Conn, sess *types.Session, log *logrus.Entry) error {
	start := time.Now()

	t, err := protocol.ReadTransfer(s.idle(conn), s.cfg.Limits)
	if err != nil {
		return err
	}
	log = log.WithFields(logrus.Fields{"file": t.Name, "ordinal": sess.Ordinal})

	rec := types.TransferRecord{
		SessionID:   sess.ID,
		Peer:        sess.Peer,
		Ordinal:     sess.Ordinal,
		FileName:    t.Name,
		Digest:      utils.Digest(t.Payload),
		PayloadSize: int64(len(t.Payload)),
	}
	defer func() {
		rec.Duration = time.Since(start)
		rec.CreatedAt = time.Now()
		if err := s.recorder.RecordTransfer(ctx, rec); err != nil {
			log.WithError(err).Warn("Failed to record transfer")
		}
	}()

	result, err := s.process(sess, t, &rec)
	if err != nil {
		rec.Outcome = types.OutcomeFailed
		rec.Error = err.Error()
		return err
	}
	rec.ResultSize = int64(len(result))

	if err := protocol.WriteResponse(s.idle(conn), protocol.Response{Confirmation: protocol.Processed, Payload: result}); err != nil {
		rec.Outcome = types.OutcomeFailed
		rec.Error = err.Error()
		return err
	}

	entry := log.WithFields(logrus.Fields{"faces": rec.FaceCount, "outcome": rec.Outcome, "bytes": len(result)})
	if rec.Outcome == types.OutcomeDegraded {
		entry.WithField("reason", rec.Error).Warn("Detection failed, placeholder returned")
	} else {
		entry.Info("Transfer processed")
	}
	return nil
}

// process stores the payload, detects, overwrites the stored file with the
// rendered result and reads it back.
func (s *Server) process(sess *types.Session, t types.Transfer, rec *types.TransferRecord) ([]byte, error) {
	path, err := s.store.SaveReceived(sess.ID, t.Name, t.Payload)
	if err != nil {
		return nil, err
	}

	res := s.detector.ProcessFile(path)
	defer res.Close()

	if res.OK() {
		rec.Outcome = types.OutcomeProcessed
		rec.FaceCount = len(res.Boxes)
	} else {
		rec.Outcome = types.OutcomeDegraded
		rec.Error = res.Failure.Message
	}

	if _, err := s.writer.Write(path, &res); err != nil {
		return nil, err
	}
	return s.store.Read(path)
}

func (s *Server) sendError(conn net.Conn, cause error, log *logrus.Entry) {
	conn.SetWriteDeadline(time.Now().Add(errorWriteTimeout))
	if err := protocol.WriteConfirmation(conn, protocol.ErrorConfirmation(cause)); err != nil {
		log.WithError(err).Debug("Could not deliver error frame")
	}
}

// idle wraps conn with the per-read and per-write idle deadlines.
func (s *Server) idle(conn net.Conn) idleConn {
	return idleConn{conn: conn, readTimeout: s.cfg.ReadTimeout, writeTimeout: s.cfg.WriteTimeout}
}
