package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, source, guild_id, channel_id, language_code, sample_rate_hz, status, stop_reason, started_at, ended_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Shutdown is called by the injector on shutdown.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (source, guild_id, channel_id, language_code, sample_rate_hz, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'running')
		 RETURNING `+sessionColumns,
		string(input.Source), input.GuildID, input.ChannelID, input.LanguageCode, input.SampleRateHz, input.StartedAt)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, stop_reason = $3, ended_at = $4 WHERE id = $1`,
		input.SessionID, string(input.Status), input.StopReason, input.EndedAt)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", input.SessionID, err)
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return s, nil
}

func (r *PostgresRepository) GetRunningSessionByChannel(ctx context.Context, guildID, channelID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE guild_id = $1 AND channel_id = $2 AND status = 'running'
		 LIMIT 1`,
		guildID, channelID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get running session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcript_segments (session_id, segment_index, content, result_id, confidence, start_ms, end_ms, spoken_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		input.SessionID, input.SegmentIndex, input.Content, input.ResultID, input.Confidence, input.StartMs, input.EndMs, input.SpokenAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSegmentsBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptSegment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, segment_index, content, result_id, confidence, start_ms, end_ms, spoken_at, created_at
		 FROM transcript_segments WHERE session_id = $1 ORDER BY segment_index ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()
	var list []repository.TranscriptSegment
	for rows.Next() {
		var seg repository.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.SegmentIndex, &seg.Content, &seg.ResultID, &seg.Confidence, &seg.StartMs, &seg.EndMs, &seg.SpokenAt, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		list = append(list, seg)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertSentimentAlert(ctx context.Context, input repository.InsertSentimentAlertInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sentiment_alerts (session_id, segment_index, label, negative_score)
		 VALUES ($1, $2, $3, $4)`,
		input.SessionID, input.SegmentIndex, input.Label, input.NegativeScore)
	if err != nil {
		return fmt.Errorf("insert sentiment alert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveSummary(ctx context.Context, input repository.SaveSummaryInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_summaries (session_id, model_id, summary)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET model_id = EXCLUDED.model_id, summary = EXCLUDED.summary, created_at = NOW()`,
		input.SessionID, input.ModelID, input.Summary)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSummary(ctx context.Context, sessionID string) (*repository.SessionSummary, error) {
	var s repository.SessionSummary
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, model_id, summary, created_at FROM session_summaries WHERE session_id = $1`,
		sessionID).Scan(&s.SessionID, &s.ModelID, &s.Summary, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &s, nil
}

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var status, source string
	err := row.Scan(&s.ID, &source, &s.GuildID, &s.ChannelID, &s.LanguageCode, &s.SampleRateHz, &status, &s.StopReason, &s.StartedAt, &s.EndedAt)
	if err != nil {
		return nil, err
	}
	s.Source = repository.SessionSource(source)
	s.Status = repository.SessionStatus(status)
	return &s, nil
}
