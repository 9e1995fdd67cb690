package events

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type capturingPublisher struct {
	published []string
	failOn    string
}

func (p *capturingPublisher) Publish(subject string, payload any) error {
	if subject == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, subject)
	return nil
}

func TestApplyPublishesAll(t *testing.T) {
	pub := &capturingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	failed := Apply(pub, []Event{
		{Subject: SubjectLeadQualified, Payload: map[string]any{"session_id": "s1"}},
		{Subject: SubjectMediaShown, Payload: map[string]any{"media_type": "demo"}},
	}, logger)

	if failed != 0 {
		t.Errorf("failed = %d, expected 0", failed)
	}
	if len(pub.published) != 2 {
		t.Fatalf("published = %d, expected 2", len(pub.published))
	}
	if pub.published[0] != SubjectLeadQualified || pub.published[1] != SubjectMediaShown {
		t.Errorf("published = %v", pub.published)
	}
}

func TestApplyContinuesPastFailures(t *testing.T) {
	pub := &capturingPublisher{failOn: SubjectLeadQualified}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	failed := Apply(pub, []Event{
		{Subject: SubjectLeadQualified},
		{Subject: SubjectMeetingBooked},
	}, logger)

	if failed != 1 {
		t.Errorf("failed = %d, expected 1", failed)
	}
	if len(pub.published) != 1 || pub.published[0] != SubjectMeetingBooked {
		t.Errorf("published = %v, expected only meeting.booked", pub.published)
	}
}

func TestApplyNilPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// Must not panic.
	if failed := Apply(nil, []Event{{Subject: SubjectSessionClosed}}, logger); failed != 0 {
		t.Errorf("failed = %d, expected 0", failed)
	}
}
