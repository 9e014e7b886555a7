package document

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r ObjectRef) Validate() error {
	if strings.TrimSpace(r.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(r.Key) == "" {
		return errors.New("key is required")
	}
	return nil
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

type BlockType string

const (
	BlockTypePage  BlockType = "PAGE"
	BlockTypeLine  BlockType = "LINE"
	BlockTypeWord  BlockType = "WORD"
	BlockTypeTable BlockType = "TABLE"
)

type Block struct {
	Type BlockType
	Text string
}

// JoinLines concatenates the text of LINE blocks in order, one per line.
func JoinLines(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != BlockTypeLine {
			continue
		}
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n")
}

type Detector interface {
	DetectText(ctx context.Context, ref ObjectRef) ([]Block, error)
}

type TextCache interface {
	Get(ctx context.Context, ref ObjectRef) (text string, ok bool, err error)
	Set(ctx context.Context, ref ObjectRef, text string) error
}

type Service struct {
	detector Detector
	cache    TextCache
}

// NewService builds a Service. cache may be nil.
func NewService(detector Detector, cache TextCache) *Service {
	return &Service{detector: detector, cache: cache}
}

func (s *Service) ExtractText(ctx context.Context, ref ObjectRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if s.cache != nil {
		text, ok, err := s.cache.Get(ctx, ref)
		if err != nil {
			slog.Warn("ocr cache lookup failed", "error", err, "object", ref.String())
		} else if ok {
			slog.Debug("ocr cache hit", "object", ref.String())
			return text, nil
		}
	}

	blocks, err := s.detector.DetectText(ctx, ref)
	if err != nil {
		slog.Error("document text detection failed", "error", err, "object", ref.String())
		return "", err
	}
	text := JoinLines(blocks)

	if s.cache != nil {
		if err := s.cache.Set(ctx, ref, text); err != nil {
			slog.Warn("failed to store ocr result in cache", "error", err, "object", ref.String())
		}
	}
	return text, nil
}
