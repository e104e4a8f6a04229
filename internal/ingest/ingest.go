// Package ingest admits parsed roster documents into the dispatch
// pipeline.
//
// Text extraction and field parsing happen upstream; ingest receives a
// fully parsed Roster, checks it, and turns each line into one queued
// job. The initial-response pause is applied here so the platform sees
// a human-like delay between receiving a document and acting on it.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rosterbot/internal/dispatch"
	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

var (
	ErrNoLines  = errors.New("ingest: roster has no lines")
	ErrNoOwner  = errors.New("ingest: roster has no owner")
	ErrBadLine  = errors.New("ingest: roster line is incomplete")
	ErrNoTarget = errors.New("ingest: add_to_group line has no target group")
)

// Line is one parsed roster entry.
type Line struct {
	LineID int64
	Kind   dispatch.JobKind
	Label  string
	User   transport.UserRef

	// Group is the target for add_to_group lines.
	Group transport.ChatTarget

	// Title is the space name for create_group lines.
	Title string
}

// Roster is a parsed document ready for admission.
type Roster struct {
	DocumentID string
	Owner      transport.UserRef
	Lines      []Line
}

type Admitter struct {
	log logx.Logger
	svc *dispatch.Service
}

func New(log logx.Logger, svc *dispatch.Service) *Admitter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Admitter{log: log, svc: svc}
}

// Admit validates the roster and enqueues one job per line under a
// fresh document progress record. The document id is generated when
// absent. Returns the admitted document id.
func (a *Admitter) Admit(ctx context.Context, r Roster) (string, error) {
	if err := validate(r); err != nil {
		return "", err
	}
	docID := r.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	if err := a.svc.PaceInitialResponse(ctx); err != nil {
		return "", err
	}

	a.svc.InitDocument(docID, len(r.Lines), r.Owner)
	for _, line := range r.Lines {
		a.svc.EnqueueJob(dispatch.Job{
			ID:         uuid.NewString(),
			Kind:       line.Kind,
			DocumentID: docID,
			LineID:     line.LineID,
			Label:      line.Label,
			User:       line.User,
			Group:      line.Group,
			Title:      line.Title,
		})
	}
	a.log.Info("roster admitted",
		logx.String("doc", docID),
		logx.Int("lines", len(r.Lines)),
		logx.Int64("owner", r.Owner.UserID))
	return docID, nil
}

func validate(r Roster) error {
	if len(r.Lines) == 0 {
		return ErrNoLines
	}
	if r.Owner.UserID == 0 {
		return ErrNoOwner
	}
	for i, line := range r.Lines {
		switch line.Kind {
		case dispatch.JobAddMember:
			if line.User.UserID == 0 {
				return fmt.Errorf("%w: line %d has no user", ErrBadLine, i)
			}
			if line.Group.ChatID == 0 {
				return fmt.Errorf("%w: line %d", ErrNoTarget, i)
			}
		case dispatch.JobCreateGroup:
			if line.Title == "" {
				return fmt.Errorf("%w: line %d has no title", ErrBadLine, i)
			}
			if line.User.UserID == 0 {
				return fmt.Errorf("%w: line %d has no first member", ErrBadLine, i)
			}
		default:
			return fmt.Errorf("%w: line %d has unknown kind %q", ErrBadLine, i, line.Kind)
		}
	}
	return nil
}
