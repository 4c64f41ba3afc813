package bot

import (
	"time"

	"crowdmod/internal/analytics"
	"crowdmod/internal/config"
	"crowdmod/internal/immunity"
	"crowdmod/internal/modules/audit"
	"crowdmod/internal/modules/meme"
	"crowdmod/internal/modules/timeoutwars"
	"crowdmod/internal/modules/verify"
	"crowdmod/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// stateMessageLimit keeps enough recent messages cached for deletions of
// marked messages to be recognised.
const stateMessageLimit = 500

type Bot struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *storage.Store
	audit       *audit.Logger
	analytics   *analytics.Service
	session     *discordgo.Session
	platform    *discordPlatform
	timeoutWars *timeoutwars.Service
	meme        *meme.Module
	verify      *verify.Module
	marked      *markedCache
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, tracker *immunity.Tracker, auditLogger *audit.Logger, analyticsEngine *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = stateMessageLimit

	platform := &discordPlatform{
		session:      session,
		auditChannel: cfg.TimeoutWars.LogChannel,
		colors: colorSet{
			timeoutWars: cfg.Notifications.EmbedColors.TimeoutWars,
			verify:      cfg.Notifications.EmbedColors.Verify,
		},
	}

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		analytics: analyticsEngine,
		session:   session,
		platform:  platform,
		marked:    newMarkedCache(stateMessageLimit),
	}

	if cfg.TimeoutWars.Enabled {
		b.timeoutWars = timeoutwars.New(timeoutwars.Config{
			Emoji:            cfg.TimeoutWars.Emoji,
			Threshold:        cfg.TimeoutWars.ReactionCount,
			Timeout:          cfg.TimeoutWars.TimeoutDuration(),
			Immunity:         cfg.TimeoutWars.ImmunityDuration(),
			ChanceAllMute:    cfg.TimeoutWars.ChanceAllMute,
			ChanceRandomMute: cfg.TimeoutWars.ChanceRandomMute,
			MaxParallel:      cfg.TimeoutWars.MaxParallel,
		}, platform, tracker, auditLogger, logger.Named("timeoutwars"))
	}
	if cfg.Meme.Enabled {
		b.meme = meme.New(cfg.Meme)
	}
	b.verify = verify.New(cfg.Verify, platform, logger.Named("verify"))
	if b.audit != nil {
		b.audit.SetNotifier(platform)
	}

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onMessageReactionRemove)
	b.session.AddHandler(b.onMessageReactionRemoveAll)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	return b.registerCommands()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

// UhohCount is exposed for the stats endpoint.
func (b *Bot) UhohCount() int64 {
	if b.meme == nil {
		return 0
	}
	return b.meme.UhohCount()
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.Error(err))
	}
}

// clearButtons replaces the component message in place so a request cannot be
// answered twice.
func (b *Bot) clearButtons(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string) {
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	}); err != nil {
		b.logger.Warn("interaction update failed", zap.Error(err))
	}
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}
