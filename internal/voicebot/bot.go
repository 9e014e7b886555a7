package voicebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/discord"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/session"
	"github.com/foxseedlab/kikitori/internal/transcriber"
)

const (
	audioBufferFrames = 50
	statsInterval     = 30 * time.Second
)

var errAlreadyRunning = errors.New("session already running")

// SessionRunner is the part of *session.Manager the bot drives.
type SessionRunner interface {
	Run(ctx context.Context, req session.StartRequest, audio <-chan transcriber.AudioChunk, hooks session.Hooks) error
	Location() *time.Location
}

type Bot struct {
	cfg      *config.Config
	discord  discord.Client
	runner   SessionRunner
	newMixer audio.MixerFactory

	mu        sync.Mutex
	botUserID string
	sessions  map[string]*activeSession
	wg        sync.WaitGroup
}

type activeSession struct {
	guildID    string
	channelID  string
	stopReason string
	cancel     context.CancelFunc
}

func NewBot(cfg *config.Config, dc discord.Client, runner SessionRunner, newMixer audio.MixerFactory) *Bot {
	return &Bot{
		cfg:      cfg,
		discord:  dc,
		runner:   runner,
		newMixer: newMixer,
		sessions: make(map[string]*activeSession),
	}
}

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: commandStart, Description: slashCommandStartDescription},
		{Name: commandStop, Description: slashCommandStopDescription},
	}
}

// Run connects to Discord and serves slash commands until ctx is cancelled, then stops every
// running session and waits for their transcripts to be posted.
func (b *Bot) Run(ctx context.Context, connectTimeout time.Duration) error {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := b.discord.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect discord: %w", err)
	}
	defer func() {
		if err := b.discord.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	botUserID, err := b.discord.GetBotUserID()
	if err != nil {
		return fmt.Errorf("resolve bot user id: %w", err)
	}
	b.SetBotUserID(botUserID)
	if err := b.discord.UpsertGuildSlashCommands(b.cfg.DiscordGuildID, SlashCommandDefinitions()); err != nil {
		return fmt.Errorf("upsert slash commands: %w", err)
	}
	b.discord.RegisterVoiceStateUpdateHandler(b.HandleVoiceStateUpdate)
	b.discord.RegisterSlashCommandHandler(b.HandleSlashCommand)
	slog.Info("discord handlers registered", "guild_id", b.cfg.DiscordGuildID, "commands", []string{commandStart, commandStop})

	<-ctx.Done()
	if n := b.StopAllSessions(stopReasonServerClosed); n > 0 {
		slog.Info("stopped running voice sessions", "count", n)
	}
	return nil
}

func (b *Bot) SetBotUserID(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.botUserID = userID
}

func (b *Bot) selfUserID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.botUserID
}

func (b *Bot) HandleSlashCommand(ev discord.SlashCommandEvent) {
	respond := func(content string) {
		if ev.RespondEphemeral == nil {
			return
		}
		if err := ev.RespondEphemeral(content); err != nil {
			slog.Error("failed to respond to slash command", "error", err, "command", ev.CommandName)
		}
	}
	if ev.GuildID != b.cfg.DiscordGuildID {
		respond(messageEphemeralWrongGuild)
		return
	}
	if ev.CommandName != commandStart && ev.CommandName != commandStop {
		respond(messageEphemeralUnknownCommand)
		return
	}

	channelID, err := b.discord.GetUserVoiceChannelID(ev.GuildID, ev.UserID)
	if err != nil {
		slog.Error("failed to look up user voice channel", "error", err, "guild_id", ev.GuildID, "user_id", ev.UserID)
		respond(messageEphemeralVoiceLookupFailed)
		return
	}
	if channelID == "" {
		respond(messageEphemeralJoinVCFirst)
		return
	}

	switch ev.CommandName {
	case commandStart:
		err := b.startSession(ev.GuildID, channelID)
		switch {
		case errors.Is(err, errAlreadyRunning):
			respond(messageEphemeralAlreadyRunning)
		case err != nil:
			slog.Error("failed to start voice session", "error", err, "guild_id", ev.GuildID, "channel_id", channelID)
			respond(messageEphemeralStartFailed)
		default:
			respond(startEphemeralMessage(channelID))
		}
	case commandStop:
		if !b.stopSession(ev.GuildID, channelID, stopReasonManualSlash) {
			respond(messageEphemeralNotRunning)
			return
		}
		respond(stopEphemeralMessage(channelID))
	}
}

func (b *Bot) HandleVoiceStateUpdate(ev discord.VoiceStateEvent) {
	if ev.GuildID != b.cfg.DiscordGuildID {
		return
	}
	if ev.BeforeChannelID != "" && ev.BeforeChannelID == ev.AfterChannelID {
		return
	}
	if ev.UserID == b.selfUserID() {
		if ev.AfterChannelID == "" {
			for _, channelID := range b.sessionChannels(ev.GuildID, ev.BeforeChannelID) {
				b.stopSession(ev.GuildID, channelID, stopReasonBotRemoved)
			}
		}
		return
	}
	// Other bots never count as participants, so their moves cannot end a session.
	if ev.UserIsBot {
		return
	}
	for _, channelID := range b.sessionChannels(ev.GuildID, ev.BeforeChannelID) {
		if channelID == ev.AfterChannelID {
			continue
		}
		if b.countHumans(ev.GuildID, channelID, ev.UserID) == 0 {
			b.stopSession(ev.GuildID, channelID, stopReasonParticipantsLeft)
		}
	}
}

// sessionChannels lists the channels with a running session that a leave event may refer to.
// Discord omits the previous channel when its cache is cold, so every channel in the guild is
// checked then.
func (b *Bot) sessionChannels(guildID, beforeChannelID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, as := range b.sessions {
		if as.guildID != guildID {
			continue
		}
		if beforeChannelID == "" || as.channelID == beforeChannelID {
			out = append(out, as.channelID)
		}
	}
	return out
}

func (b *Bot) countHumans(guildID, channelID, leavingUserID string) int {
	participants, err := b.discord.ListVoiceChannelParticipants(guildID, channelID)
	if err != nil {
		slog.Warn("failed to list voice participants", "error", err, "guild_id", guildID, "channel_id", channelID)
		return 1
	}
	self := b.selfUserID()
	n := 0
	for _, p := range participants {
		if p.IsBot || p.UserID == self || p.UserID == leavingUserID {
			continue
		}
		n++
	}
	return n
}

func sessionKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

func (b *Bot) isSessionRunning(guildID, channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[sessionKey(guildID, channelID)]
	return ok
}

func (b *Bot) startSession(guildID, channelID string) error {
	key := sessionKey(guildID, channelID)
	pumpCtx, cancel := context.WithCancel(context.Background())
	as := &activeSession{guildID: guildID, channelID: channelID, cancel: cancel}

	b.mu.Lock()
	if _, exists := b.sessions[key]; exists {
		b.mu.Unlock()
		cancel()
		return errAlreadyRunning
	}
	b.sessions[key] = as
	b.mu.Unlock()

	voice, err := b.discord.JoinVoiceChannel(guildID, channelID)
	if err != nil {
		b.forget(key, as)
		cancel()
		return fmt.Errorf("join voice channel: %w", err)
	}
	slog.Info("joined voice channel", "guild_id", guildID, "channel_id", channelID)

	mixer := b.newMixer()
	audioCh := make(chan transcriber.AudioChunk, audioBufferFrames)
	var receivedPackets int64
	go voice.ReceiveAudio(func(userID string, packet []byte) {
		if n := atomic.AddInt64(&receivedPackets, 1); n == 1 {
			slog.Info("received first opus packet", "channel_id", channelID, "user_id", userID)
		}
		mixer.WriteOpusPacket(userID, packet)
	})
	go pumpMixedAudio(pumpCtx, channelID, mixer, audioCh, &receivedPackets)

	if err := b.discord.SendChannelMessage(channelID, startChannelMessage()); err != nil {
		slog.Error("failed to post start message", "error", err, "channel_id", channelID)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runSession(as, audioCh, func() {
			mixer.Close()
			if err := voice.Disconnect(); err != nil {
				slog.Warn("failed to disconnect voice", "error", err, "channel_id", channelID)
			}
		})
	}()
	return nil
}

func (b *Bot) runSession(as *activeSession, audioCh <-chan transcriber.AudioChunk, release func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice session worker panicked", "panic", r, "channel_id", as.channelID)
			as.cancel()
			release()
			b.forget(sessionKey(as.guildID, as.channelID), as)
			b.postStop(as.channelID, stopReasonUnknownError)
		}
	}()

	var (
		started  *repository.Session
		segments []repository.TranscriptSegment
	)
	err := b.runner.Run(context.Background(), session.StartRequest{
		Source:    repository.SessionSourceDiscord,
		GuildID:   as.guildID,
		ChannelID: as.channelID,
		Config: transcriber.SessionConfig{
			LanguageCode:  b.cfg.TranscribeLanguageCode,
			MediaEncoding: transcriber.MediaEncodingPCM,
			SampleRateHz:  audio.SampleRateHz,
		},
	}, audioCh, session.Hooks{
		OnStart: func(s *repository.Session) { started = s },
		OnTranscript: func(seg repository.TranscriptSegment) {
			segments = append(segments, seg)
			if err := b.discord.SendChannelMessage(as.channelID, seg.Content); err != nil {
				slog.Error("failed to post transcript message", "error", err, "channel_id", as.channelID)
			}
		},
	})
	as.cancel()
	release()
	if err != nil {
		slog.Error("voice session ended with error", "error", err, "channel_id", as.channelID)
	}

	reason := b.forget(sessionKey(as.guildID, as.channelID), as)
	if reason == "" {
		reason = stopReasonUnknownError
		if started != nil && started.StopReason == session.StopReasonMaxDuration {
			reason = stopReasonMaxDuration
		}
	}
	b.postStop(as.channelID, reason)
	if started != nil {
		b.postTranscript(as, started, segments)
	}
}

func (b *Bot) postStop(channelID, reason string) {
	slog.Info("voice session stopped", "channel_id", channelID, "reason", reason)
	if err := b.discord.SendChannelMessage(channelID, stopChannelMessage(reason)); err != nil {
		slog.Error("failed to post stop message", "error", err, "channel_id", channelID)
	}
}

func (b *Bot) postTranscript(as *activeSession, s *repository.Session, segments []repository.TranscriptSegment) {
	names := b.discord.ResolveChannelNames(as.guildID, as.channelID)
	body := session.FormatTranscript(s, b.cfg.TranscriptTimezone, b.runner.Location(), segments)
	if err := b.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: as.channelID,
		Content:   attachmentMessage(names.GuildName, names.ChannelName),
		Filename:  fmt.Sprintf("transcript-%s.txt", s.ID),
		FileBody:  body,
	}); err != nil {
		slog.Error("failed to post transcript attachment", "error", err, "session_id", s.ID)
	}
}

// stopSession ends the audio input; the session flushes its remaining finals and posts the
// transcript from its own goroutine.
func (b *Bot) stopSession(guildID, channelID, reason string) bool {
	key := sessionKey(guildID, channelID)
	b.mu.Lock()
	as, ok := b.sessions[key]
	if ok {
		delete(b.sessions, key)
		if as.stopReason == "" {
			as.stopReason = reason
		}
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	slog.Info("stopping voice session", "guild_id", guildID, "channel_id", channelID, "reason", reason)
	as.cancel()
	return true
}

// forget removes as from the running set if it is still registered and returns the stop reason
// recorded for it.
func (b *Bot) forget(key string, as *activeSession) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.sessions[key]; ok && cur == as {
		delete(b.sessions, key)
	}
	return as.stopReason
}

// StopAllSessions stops every running session and waits for them to finish.
func (b *Bot) StopAllSessions(reason string) int {
	b.mu.Lock()
	keys := make([]*activeSession, 0, len(b.sessions))
	for _, as := range b.sessions {
		keys = append(keys, as)
	}
	b.mu.Unlock()

	count := 0
	for _, as := range keys {
		if b.stopSession(as.guildID, as.channelID, reason) {
			count++
		}
	}
	b.wg.Wait()
	return count
}

// pumpMixedAudio feeds one mixed frame per tick until ctx ends, then closes out. The streaming
// services end idle streams, so silence is sent while nobody speaks.
func pumpMixedAudio(ctx context.Context, channelID string, mixer audio.Mixer, out chan<- transcriber.AudioChunk, receivedPackets *int64) {
	defer close(out)
	ticker := time.NewTicker(audio.FrameDuration)
	statsTicker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	defer statsTicker.Stop()
	var mixedFrames, silentFrames int64
	for {
		select {
		case <-ctx.Done():
			slog.Info("audio mixer loop stopped", "channel_id", channelID, "received_opus_packets", atomic.LoadInt64(receivedPackets), "mixed_frames", mixedFrames, "silent_frames", silentFrames)
			return
		case <-statsTicker.C:
			slog.Debug("audio pipeline stats", "channel_id", channelID, "received_opus_packets", atomic.LoadInt64(receivedPackets), "mixed_frames", mixedFrames, "silent_frames", silentFrames)
		case <-ticker.C:
			frame := make([]byte, audio.FrameBytes)
			n, err := mixer.ReadMixedPCM(frame)
			if err != nil {
				slog.Warn("failed to read mixed pcm", "error", err, "channel_id", channelID)
				continue
			}
			if n == 0 {
				silentFrames++
				n = len(frame)
			} else {
				mixedFrames++
			}
			select {
			case out <- transcriber.AudioChunk(frame[:n]):
			case <-ctx.Done():
				return
			}
		}
	}
}
