package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/kikitori/internal/discord"
)

const transcriptContentType = "text/plain; charset=utf-8"

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) discordpkg.Client {
	return &Client{token: token}
}

func (c *Client) Connect(_ context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	c.session = s
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates)
	s.State.TrackVoice = true
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if _, err := c.GetBotUserID(); err != nil {
		return fmt.Errorf("resolve bot user: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) JoinVoiceChannel(guildID, channelID string) (discordpkg.VoiceConnection, error) {
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return newVoiceConnection(vc), nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	if _, err := c.session.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return nil
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{{
			Name:        msg.Filename,
			ContentType: transcriptContentType,
			Reader:      bytes.NewReader(msg.FileBody),
		}},
	})
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Filename, msg.ChannelID, err)
	}
	return nil
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		ev, ok := voiceStateEvent(vs)
		if !ok {
			return
		}
		ev.UserIsBot = c.isBot(vs.GuildID, vs.UserID, vs.VoiceState)
		handler(ev)
	})
}

// voiceStateEvent reports false for updates that do not move the user between channels, such
// as mute toggles.
func voiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil || vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	if before != "" && before == vs.ChannelID {
		return discordpkg.VoiceStateEvent{}, false
	}
	return discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		BeforeChannelID: before,
		AfterChannelID:  vs.ChannelID,
	}, true
}

func (c *Client) RegisterSlashCommandHandler(handler func(discordpkg.SlashCommandEvent)) {
	c.session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic == nil || ic.Type != discordgo.InteractionApplicationCommand {
			return
		}
		name := ic.ApplicationCommandData().Name
		userID := interactionUserID(ic)
		if name == "" || userID == "" {
			return
		}
		slog.Info("slash command received", "guild_id", ic.GuildID, "channel_id", ic.ChannelID, "command", name, "user_id", userID)
		handler(discordpkg.SlashCommandEvent{
			GuildID:     ic.GuildID,
			ChannelID:   ic.ChannelID,
			CommandName: name,
			UserID:      userID,
			RespondEphemeral: func(content string) error {
				return s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: content,
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			},
		})
	})
}

// interactionUserID prefers the guild member, falling back to the user set on DM interactions.
func interactionUserID(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil && ic.Member.User != nil && ic.Member.User.ID != "" {
		return ic.Member.User.ID
	}
	if ic.User != nil {
		return ic.User.ID
	}
	return ""
}

// UpsertGuildSlashCommands creates missing commands and edits those whose description drifted.
func (c *Client) UpsertGuildSlashCommands(guildID string, defs []discordpkg.SlashCommandDefinition) error {
	appID := c.applicationID()
	if appID == "" {
		return errors.New("discord application id is not available")
	}
	existing, err := c.session.ApplicationCommands(appID, guildID)
	if err != nil {
		return fmt.Errorf("list guild commands: %w", err)
	}
	byName := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		if cmd != nil && cmd.Name != "" {
			byName[cmd.Name] = cmd
		}
	}
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		payload := &discordgo.ApplicationCommand{Name: def.Name, Description: def.Description}
		cur, ok := byName[def.Name]
		switch {
		case !ok:
			_, err = c.session.ApplicationCommandCreate(appID, guildID, payload)
		case cur.Description != def.Description:
			_, err = c.session.ApplicationCommandEdit(appID, guildID, cur.ID, payload)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("upsert command %s: %w", def.Name, err)
		}
	}
	return nil
}

func (c *Client) GetUserVoiceChannelID(guildID, userID string) (string, error) {
	if c.session == nil {
		return "", nil
	}
	if id, ok := c.cachedVoiceChannelID(guildID, userID); ok {
		return id, nil
	}

	// The state cache is cold right after startup.
	vs, err := c.session.UserVoiceState(guildID, userID)
	switch {
	case isRESTNotFound(err):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("fetch voice state: %w", err)
	case vs == nil:
		return "", nil
	}
	return vs.ChannelID, nil
}

func (c *Client) cachedVoiceChannelID(guildID, userID string) (string, bool) {
	if c.session.State == nil {
		return "", false
	}
	if vs, err := c.session.State.VoiceState(guildID, userID); err == nil && vs != nil {
		return vs.ChannelID, true
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return "", false
	}
	for _, state := range guild.VoiceStates {
		if state != nil && state.UserID == userID {
			return state.ChannelID, true
		}
	}
	return "", false
}

func isRESTNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) ListVoiceChannelParticipants(guildID, channelID string) ([]discordpkg.VoiceParticipant, error) {
	if c.session == nil || c.session.State == nil {
		return nil, nil
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, nil
	}
	var participants []discordpkg.VoiceParticipant
	seen := make(map[string]bool)
	for _, state := range guild.VoiceStates {
		if state == nil || state.ChannelID != channelID || state.UserID == "" || seen[state.UserID] {
			continue
		}
		seen[state.UserID] = true
		participants = append(participants, discordpkg.VoiceParticipant{
			UserID: state.UserID,
			IsBot:  c.isBot(guildID, state.UserID, state),
		})
	}
	return participants, nil
}

func (c *Client) GetBotUserID() (string, error) {
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", errors.New("discord session is not initialized")
	}
	if st := c.session.State; st != nil && st.User != nil && st.User.ID != "" {
		c.botUserID = st.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", fmt.Errorf("fetch bot user: %w", err)
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

// ResolveChannelNames falls back to the raw IDs for anything neither the state cache nor the
// REST API can name.
func (c *Client) ResolveChannelNames(guildID, channelID string) discordpkg.ChannelNames {
	names := discordpkg.ChannelNames{GuildName: guildID, ChannelName: channelID}
	if c.session == nil {
		return names
	}
	if name, ok := stateThenREST(c.session.State.Guild, guildByID(c.session), guildID, guildName); ok {
		names.GuildName = name
	} else {
		slog.Warn("guild name unresolved; using id", "guild_id", guildID)
	}
	if name, ok := stateThenREST(c.session.State.Channel, channelByID(c.session), channelID, channelName); ok {
		names.ChannelName = name
	} else {
		slog.Warn("channel name unresolved; using id", "channel_id", channelID)
	}
	return names
}

func stateThenREST[T any](fromState, fromREST func(string) (T, error), id string, name func(T) string) (string, bool) {
	if v, err := fromState(id); err == nil {
		if n := name(v); n != "" {
			return n, true
		}
	}
	v, err := fromREST(id)
	if err != nil {
		return "", false
	}
	n := name(v)
	return n, n != ""
}

func guildName(g *discordgo.Guild) string {
	if g == nil {
		return ""
	}
	return g.Name
}

func channelName(ch *discordgo.Channel) string {
	if ch == nil {
		return ""
	}
	return ch.Name
}

func guildByID(s *discordgo.Session) func(string) (*discordgo.Guild, error) {
	return func(id string) (*discordgo.Guild, error) {
		return s.Guild(id)
	}
}

func channelByID(s *discordgo.Session) func(string) (*discordgo.Channel, error) {
	return func(id string) (*discordgo.Channel, error) {
		return s.Channel(id)
	}
}

// isBot checks the voice state, then the state cache, then the REST API.
func (c *Client) isBot(guildID, userID string, state *discordgo.VoiceState) bool {
	if state != nil && state.Member != nil && state.Member.User != nil {
		return state.Member.User.Bot
	}
	if c.session.State != nil {
		if self := c.session.State.User; self != nil && self.ID == userID {
			return true
		}
		if m, err := c.session.State.Member(guildID, userID); err == nil && m != nil && m.User != nil {
			return m.User.Bot
		}
	}
	u, err := c.session.User(userID)
	if err != nil {
		slog.Debug("could not resolve user; treating as human", "user_id", userID, "error", err)
		return false
	}
	return u.Bot
}

func (c *Client) applicationID() string {
	if c.session == nil || c.session.State == nil {
		return ""
	}
	if app := c.session.State.Application; app != nil && app.ID != "" {
		return app.ID
	}
	if u := c.session.State.User; u != nil {
		return u.ID
	}
	return ""
}

type voiceConnection struct {
	vc       *discordgo.VoiceConnection
	done     chan struct{}
	stopOnce sync.Once
}

func newVoiceConnection(vc *discordgo.VoiceConnection) *voiceConnection {
	return &voiceConnection{vc: vc, done: make(chan struct{})}
}

func (v *voiceConnection) Disconnect() error {
	v.stopReceiving()
	return v.vc.Disconnect()
}

// stopReceiving releases ReceiveAudio; discordgo leaves OpusRecv open after a disconnect.
func (v *voiceConnection) stopReceiving() {
	v.stopOnce.Do(func() { close(v.done) })
}

// ReceiveAudio blocks until the connection is disconnected or stops delivering packets. Packets
// from an SSRC that has not announced its speaker are attributed to the SSRC itself.
func (v *voiceConnection) ReceiveAudio(callback func(userID string, opus []byte)) {
	if v.vc.OpusRecv == nil {
		return
	}
	var (
		mu       sync.RWMutex
		speakers = make(map[uint32]string)
	)
	v.vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		if !vs.Speaking {
			return
		}
		mu.Lock()
		speakers[uint32(vs.SSRC)] = vs.UserID
		mu.Unlock()
	})
	for {
		var p *discordgo.Packet
		select {
		case <-v.done:
			return
		case pkt, ok := <-v.vc.OpusRecv:
			if !ok {
				return
			}
			p = pkt
		}
		if p == nil || len(p.Opus) == 0 {
			continue
		}
		mu.RLock()
		userID, ok := speakers[p.SSRC]
		mu.RUnlock()
		if !ok {
			userID = strconv.FormatUint(uint64(p.SSRC), 10)
		}
		callback(userID, p.Opus)
	}
}
