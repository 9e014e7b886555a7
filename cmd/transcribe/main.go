package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxseedlab/kikitori/external/awsclient"
	configloader "github.com/foxseedlab/kikitori/external/config"
	repositoryimpl "github.com/foxseedlab/kikitori/external/repository"
	sentimentimpl "github.com/foxseedlab/kikitori/external/sentiment"
	transcriberimpl "github.com/foxseedlab/kikitori/external/transcriber"
	webhookimpl "github.com/foxseedlab/kikitori/external/webhook"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/sentiment"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/transcriber"
	"github.com/foxseedlab/kikitori/internal/webhook"
	"github.com/samber/do/v2"
)

type options struct {
	file       string
	language   string
	encoding   string
	sampleRate int
	chunkMs    int
	sentiment  bool
	verbose    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	flag.StringVar(&opts.file, "file", "", "audio file to transcribe (default stdin)")
	flag.StringVar(&opts.language, "language", "", "language code (default TRANSCRIBE_LANGUAGE_CODE)")
	flag.StringVar(&opts.encoding, "encoding", "", "media encoding: pcm, ogg-opus or flac (default TRANSCRIBE_MEDIA_ENCODING)")
	flag.IntVar(&opts.sampleRate, "sample-rate", 0, "sample rate in Hz (default TRANSCRIBE_SAMPLE_RATE_HZ)")
	flag.IntVar(&opts.chunkMs, "chunk-ms", int(transcriber.DefaultChunkSpan/time.Millisecond), "audio span per chunk in milliseconds")
	flag.BoolVar(&opts.sentiment, "sentiment", false, "run sentiment alerts on each final transcript")
	flag.BoolVar(&opts.verbose, "v", false, "log at debug level")
	flag.Parse()

	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := configloader.LoadStandalone()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	sessionCfg := sessionConfig(cfg, opts)
	if err := sessionCfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid session config: %v\n", err)
		return 2
	}

	input, closeInput, err := openInput(opts.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input: %v\n", err)
		return 1
	}
	defer closeInput()

	manager, err := buildManager(cfg, opts.sentiment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	size := sessionChunkBytes(sessionCfg, time.Duration(opts.chunkMs)*time.Millisecond)
	audio, wait := transcriber.ReadChunks(ctx, input, size)

	var sessionID string
	runErr := manager.Run(ctx, session.StartRequest{
		Source: repository.SessionSourceCLI,
		Config: sessionCfg,
	}, audio, session.Hooks{
		OnStart: func(s *repository.Session) {
			sessionID = s.ID
			slog.Info("transcription started", "session_id", s.ID)
		},
		OnTranscript: func(seg repository.TranscriptSegment) {
			fmt.Println(seg.Content)
		},
	})
	stop()
	readErr := wait()

	switch {
	case runErr != nil:
		fmt.Fprintf(os.Stderr, "transcription failed: %v\n", runErr)
		return 1
	case readErr != nil && !errors.Is(readErr, context.Canceled):
		fmt.Fprintf(os.Stderr, "read input: %v\n", readErr)
		return 1
	}
	slog.Info("transcription finished", "session_id", sessionID)
	return 0
}

func sessionConfig(cfg *config.Config, opts options) transcriber.SessionConfig {
	sc := transcriber.SessionConfig{
		LanguageCode:  cfg.TranscribeLanguageCode,
		MediaEncoding: transcriber.MediaEncoding(cfg.TranscribeMediaEncoding),
		SampleRateHz:  cfg.TranscribeSampleRateHz,
	}
	if opts.language != "" {
		sc.LanguageCode = opts.language
	}
	if opts.encoding != "" {
		sc.MediaEncoding = transcriber.MediaEncoding(opts.encoding)
	}
	if opts.sampleRate > 0 {
		sc.SampleRateHz = opts.sampleRate
	}
	return sc
}

// sessionChunkBytes sizes chunks by duration for pcm. Compressed encodings have no fixed byte
// rate, so they are read in fixed blocks.
func sessionChunkBytes(sc transcriber.SessionConfig, span time.Duration) int {
	const compressedChunkBytes = 4096
	if sc.MediaEncoding != transcriber.MediaEncodingPCM {
		return compressedChunkBytes
	}
	return transcriber.ChunkBytes(sc, span)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// buildManager wires a session manager backed by an in-memory repository. Summaries are not
// enqueued since no worker shares this process's storage.
func buildManager(cfg *config.Config, withSentiment bool) (*session.Manager, error) {
	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue[repository.Repository](injector, repositoryimpl.NewMemoryRepository())
	awsclient.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)

	stt, err := do.Invoke[transcriber.Transcriber](injector)
	if err != nil {
		return nil, fmt.Errorf("resolve transcriber: %w", err)
	}
	wh, err := do.Invoke[webhook.Sender](injector)
	if err != nil {
		return nil, fmt.Errorf("resolve webhook sender: %w", err)
	}
	var monitor *sentiment.Monitor
	if withSentiment {
		sentimentimpl.RegisterDI(injector)
		monitor, err = do.Invoke[*sentiment.Monitor](injector)
		if err != nil {
			return nil, fmt.Errorf("resolve sentiment monitor: %w", err)
		}
	}
	repo := do.MustInvoke[repository.Repository](injector)
	return session.NewManager(cfg, repo, stt, monitor, wh, nil), nil
}
