package repository

import (
	"context"
	"testing"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
)

func TestMemoryRepository_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	s, err := repo.CreateSession(ctx, repository.CreateSessionInput{
		Source:       repository.SessionSourceDiscord,
		GuildID:      "guild-1",
		ChannelID:    "vc-1",
		LanguageCode: "en-US",
		SampleRateHz: 48000,
		StartedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	running, _ := repo.GetRunningSessionByChannel(ctx, "guild-1", "vc-1")
	if running == nil || running.ID != s.ID {
		t.Fatalf("expected running session %s, got %+v", s.ID, running)
	}

	if err := repo.CompleteSession(ctx, repository.CompleteSessionInput{SessionID: s.ID, Status: repository.SessionStatusCompleted, StopReason: "input_closed", EndedAt: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	running, _ = repo.GetRunningSessionByChannel(ctx, "guild-1", "vc-1")
	if running != nil {
		t.Fatalf("expected no running session, got %+v", running)
	}
	got, _ := repo.GetSession(ctx, s.ID)
	if got.Status != repository.SessionStatusCompleted || got.EndedAt == nil || got.StopReason != "input_closed" {
		t.Fatalf("unexpected completed session: %+v", got)
	}
	if missing, _ := repo.GetSession(ctx, "missing"); missing != nil {
		t.Fatalf("expected nil for unknown session, got %+v", missing)
	}
}

func TestMemoryRepository_SegmentsOrderedByIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.InsertSegment(ctx, repository.InsertSegmentInput{SessionID: "s", SegmentIndex: 1, Content: "second"})
	_ = repo.InsertSegment(ctx, repository.InsertSegmentInput{SessionID: "s", SegmentIndex: 0, Content: "first"})

	list, err := repo.ListSegmentsBySessionID(ctx, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Content != "first" || list[1].Content != "second" {
		t.Fatalf("unexpected segments: %+v", list)
	}
}

func TestMemoryRepository_SummaryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.SaveSummary(ctx, repository.SaveSummaryInput{SessionID: "s", ModelID: "m", Summary: "old"})
	_ = repo.SaveSummary(ctx, repository.SaveSummaryInput{SessionID: "s", ModelID: "m", Summary: "new"})

	got, err := repo.GetSummary(ctx, "s")
	if err != nil || got == nil || got.Summary != "new" {
		t.Fatalf("unexpected summary: %+v err=%v", got, err)
	}
}
