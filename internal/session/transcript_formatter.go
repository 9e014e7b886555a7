package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
)

const transcriptTimeLayout = "2006-01-02 15:04:05"

// FormatTranscript renders the session as a text attachment: a short header followed by one line
// per segment prefixed with its elapsed HH:MM:SS offset from the session start.
func FormatTranscript(s *repository.Session, timezone string, loc *time.Location, segments []repository.TranscriptSegment) []byte {
	loc = safeLocation(loc)
	endedAt := sessionEnd(s, segments)
	lines := []string{
		fmt.Sprintf("Session: %s", s.ID),
		fmt.Sprintf("Language: %s", s.LanguageCode),
		fmt.Sprintf("Period: %s ~ %s (%s)", s.StartedAt.In(loc).Format(transcriptTimeLayout), endedAt.In(loc).Format(transcriptTimeLayout), timezone),
		"",
	}
	for _, seg := range segments {
		elapsed := seg.SpokenAt.Sub(s.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		lines = append(lines, fmt.Sprintf("%s %s", formatElapsedHMS(elapsed), seg.Content))
	}
	return []byte(strings.Join(lines, "\n"))
}

func BuildTranscriptPayload(s *repository.Session, timezone string, loc *time.Location, segments []repository.TranscriptSegment) webhook.TranscriptPayload {
	loc = safeLocation(loc)
	endedAt := sessionEnd(s, segments)
	transcriptLines := make([]string, 0, len(segments))
	for _, seg := range segments {
		transcriptLines = append(transcriptLines, seg.Content)
	}
	durationSeconds := int64(endedAt.Sub(s.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return webhook.TranscriptPayload{
		SchemaVersion:   webhook.SchemaVersion,
		SessionID:       s.ID,
		Source:          string(s.Source),
		GuildID:         s.GuildID,
		ChannelID:       s.ChannelID,
		LanguageCode:    s.LanguageCode,
		Status:          string(s.Status),
		StopReason:      s.StopReason,
		StartAt:         s.StartedAt.In(loc).Format(time.RFC3339),
		EndAt:           endedAt.In(loc).Format(time.RFC3339),
		Timezone:        timezone,
		DurationSeconds: durationSeconds,
		SegmentCount:    len(segments),
		Segments:        buildSegmentPayloads(segments, endedAt, loc),
		Transcript:      strings.Join(transcriptLines, "\n"),
	}
}

func buildSegmentPayloads(segments []repository.TranscriptSegment, sessionEndedAt time.Time, loc *time.Location) []webhook.SegmentPayload {
	out := make([]webhook.SegmentPayload, 0, len(segments))
	for i, seg := range segments {
		segmentEnd := sessionEndedAt
		if i+1 < len(segments) {
			segmentEnd = segments[i+1].SpokenAt
		}
		if segmentEnd.Before(seg.SpokenAt) {
			segmentEnd = seg.SpokenAt
		}
		out = append(out, webhook.SegmentPayload{
			Index:      seg.SegmentIndex,
			StartAt:    seg.SpokenAt.In(loc).Format(time.RFC3339),
			EndAt:      segmentEnd.In(loc).Format(time.RFC3339),
			Confidence: seg.Confidence,
			Transcript: seg.Content,
		})
	}
	return out
}

// sessionEnd falls back to the last segment when the session has not been completed yet.
func sessionEnd(s *repository.Session, segments []repository.TranscriptSegment) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	if n := len(segments); n > 0 && segments[n-1].SpokenAt.After(s.StartedAt) {
		return segments[n-1].SpokenAt
	}
	return s.StartedAt
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
