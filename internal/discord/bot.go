// Package discord is the chat-platform gateway: it receives message and
// voice-state events, exposes role and message operations to the rest of the
// bot, and serves the /rank, /top and /weekly slash commands.
package discord

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"levelbot/internal/leveling"
	"levelbot/internal/progression"
	"levelbot/internal/ranking"
	"levelbot/internal/rotation"
	"levelbot/internal/store"
	"levelbot/pkg/utils"
)

// VoiceTracker consumes voice-state transitions.
type VoiceTracker interface {
	HandleVoiceState(userID, before, after string)
}

// Bot represents the Discord gateway.
type Bot struct {
	session  *discordgo.Session
	svc      *progression.Service
	store    store.Store
	tracker  VoiceTracker
	boundary rotation.Boundary
	guildID  string
	logger   *slog.Logger
	onReady  func(bool)
}

// New creates a new Discord bot. The progression service and tracker are
// wired afterwards via SetProgression and SetTracker, since they in turn
// depend on the bot's collaborator surface.
func New(token, guildID string, st store.Store, boundary rotation.Boundary, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers

	bot := &Bot{
		session:  session,
		store:    st,
		boundary: boundary,
		guildID:  guildID,
		logger:   logger,
	}

	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// SetProgression wires the progression service. Must be called before Start.
func (b *Bot) SetProgression(svc *progression.Service) {
	b.svc = svc
}

// SetTracker wires the presence tracker. Must be called before Start.
func (b *Bot) SetTracker(t VoiceTracker) {
	b.tracker = t
}

// SetReadyFunc registers a callback flipped once the gateway is connected.
func (b *Bot) SetReadyFunc(fn func(bool)) {
	b.onReady = fn
}

// Start opens the gateway connection and registers slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.logger.Warn("slash command registration failed", "error", err)
	}

	if b.onReady != nil {
		b.onReady(true)
	}
	b.logger.Info("bot is running", "guild", b.guildID)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	if b.onReady != nil {
		b.onReady(false)
	}
	return b.session.Close()
}

func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{Name: "rank", Description: "Check your level and XP progress"},
		{Name: "top", Description: "Show the all-time server ranking"},
		{Name: "weekly", Description: "Show this week's XP ranking"},
	}
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, commands)
	if err != nil {
		return fmt.Errorf("failed to overwrite slash commands: %w", err)
	}
	return nil
}

// messageCreate grants chat XP for every non-bot message, subject to the
// cooldown gate inside the progression service.
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot || b.svc == nil {
		return
	}
	if err := b.svc.HandleMessage(m.Author.ID, m.ChannelID, time.Now()); err != nil {
		b.logger.Error("message xp handling failed", "user", m.Author.ID, "error", err)
	}
}

// voiceStateUpdate forwards join/leave/move transitions to the tracker.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if b.tracker == nil {
		return
	}
	if member, err := s.State.Member(vs.GuildID, vs.UserID); err == nil && member.User != nil && member.User.Bot {
		return
	}

	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	b.tracker.HandleVoiceState(vs.UserID, before, vs.ChannelID)
}

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "rank":
		b.handleRank(s, i)
	case "top":
		b.handleTop(s, i)
	case "weekly":
		b.handleWeekly(s, i)
	}
}

func (b *Bot) handleRank(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	rec, ok := b.store.Get(userID)
	if !ok {
		b.respondText(s, i, "No XP yet!")
		return
	}

	required := leveling.RequiredXP(rec.Level)
	bar := utils.ProgressBar(rec.XP, required, 20)
	percent := utils.Percent(rec.XP, required)

	embed := &discordgo.MessageEmbed{
		Title: "📊 Your rank",
		Color: 0x3498db,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Level", Value: fmt.Sprintf("Lv %d", rec.Level), Inline: true},
			{Name: "XP", Value: fmt.Sprintf("%s %d%%\n%d / %d", bar, percent, rec.XP, required)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Level System"},
	}
	b.respondEmbed(s, i, embed)
}

func (b *Bot) handleTop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	entries := ranking.TopN(b.store.All(), 10)
	if len(entries) == 0 {
		b.respondText(s, i, "No data yet!")
		return
	}

	description := ""
	for _, e := range entries {
		score := fmt.Sprintf("Lv%d (%dXP)", e.Level, e.XP)
		description += utils.FormatLeaderboardEntry(e.Rank, utils.FormatUserMention(e.UserID), score) + "\n"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🏆 Server ranking TOP 10",
		Color:       0xf1c40f,
		Description: description,
	}
	b.respondEmbed(s, i, embed)
}

func (b *Bot) handleWeekly(s *discordgo.Session, i *discordgo.InteractionCreate) {
	since := b.boundary.Last(time.Now())
	entries := ranking.TopNWindowed(b.store.All(), 10, since)
	if len(entries) == 0 {
		b.respondText(s, i, "No XP earned this week yet!")
		return
	}

	description := ""
	for _, e := range entries {
		score := fmt.Sprintf("%dXP this week", e.Score)
		description += utils.FormatLeaderboardEntry(e.Rank, utils.FormatUserMention(e.UserID), score) + "\n"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📅 Weekly ranking",
		Color:       0x2ecc71,
		Description: description,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Since " + since.Format("Mon Jan 2 15:04 MST"),
		},
	}
	b.respondEmbed(s, i, embed)
}

func (b *Bot) respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		b.logger.Warn("interaction response failed", "error", err)
	}
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		b.logger.Warn("interaction response failed", "error", err)
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
