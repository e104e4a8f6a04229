package ingest

import (
	"context"
	"errors"
	"testing"

	"rosterbot/internal/dispatch"
	"rosterbot/internal/transport"
	"rosterbot/pkg/logx"
)

func newAdmitter(t *testing.T) (*Admitter, *dispatch.Service) {
	t.Helper()
	svc := dispatch.New(dispatch.Config{}, logx.Nop(), nil, dispatch.Callbacks{})
	return New(logx.Nop(), svc), svc
}

func validRoster() Roster {
	return Roster{
		Owner: transport.UserRef{UserID: 9},
		Lines: []Line{
			{LineID: 1, Kind: dispatch.JobAddMember, Label: "alice",
				User: transport.UserRef{UserID: 100}, Group: transport.ChatTarget{ChatID: -1}},
			{LineID: 2, Kind: dispatch.JobCreateGroup, Label: "ops team",
				Title: "Ops", User: transport.UserRef{UserID: 101}},
		},
	}
}

func TestAdmitEnqueuesOneJobPerLine(t *testing.T) {
	t.Parallel()
	a, svc := newAdmitter(t)
	docID, err := a.Admit(context.Background(), validRoster())
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if docID == "" {
		t.Fatal("Admit returned empty document id")
	}
	st := svc.Stats()
	if st.JobsPending != 2 {
		t.Fatalf("JobsPending = %d, want 2", st.JobsPending)
	}
	if st.DocumentsTracked != 1 {
		t.Fatalf("DocumentsTracked = %d, want 1", st.DocumentsTracked)
	}
}

func TestAdmitKeepsProvidedDocumentID(t *testing.T) {
	t.Parallel()
	a, _ := newAdmitter(t)
	r := validRoster()
	r.DocumentID = "doc-provided"
	docID, err := a.Admit(context.Background(), r)
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	if docID != "doc-provided" {
		t.Fatalf("docID = %s, want doc-provided", docID)
	}
}

func TestAdmitRejectsEmptyRoster(t *testing.T) {
	t.Parallel()
	a, _ := newAdmitter(t)
	_, err := a.Admit(context.Background(), Roster{Owner: transport.UserRef{UserID: 1}})
	if !errors.Is(err, ErrNoLines) {
		t.Fatalf("err = %v, want ErrNoLines", err)
	}
}

func TestAdmitRejectsMissingOwner(t *testing.T) {
	t.Parallel()
	a, _ := newAdmitter(t)
	r := validRoster()
	r.Owner = transport.UserRef{}
	if _, err := a.Admit(context.Background(), r); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("err = %v, want ErrNoOwner", err)
	}
}

func TestAdmitRejectsIncompleteLines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line Line
		want error
	}{
		{
			name: "add without user",
			line: Line{Kind: dispatch.JobAddMember, Group: transport.ChatTarget{ChatID: -1}},
			want: ErrBadLine,
		},
		{
			name: "add without group",
			line: Line{Kind: dispatch.JobAddMember, User: transport.UserRef{UserID: 5}},
			want: ErrNoTarget,
		},
		{
			name: "create without title",
			line: Line{Kind: dispatch.JobCreateGroup, User: transport.UserRef{UserID: 5}},
			want: ErrBadLine,
		},
		{
			name: "unknown kind",
			line: Line{Kind: "remove_from_group", User: transport.UserRef{UserID: 5}},
			want: ErrBadLine,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a, _ := newAdmitter(t)
			_, err := a.Admit(context.Background(), Roster{
				Owner: transport.UserRef{UserID: 1},
				Lines: []Line{tt.line},
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
