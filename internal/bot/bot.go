// Package bot wires the facility commands, views and modals onto a Discord
// session using explicit dispatch tables.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/config"
	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/mirror"
	"github.com/AlexJFox/FacilityLocator/internal/observability"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/bwmarrin/discordgo"
)

// customIDPrefix namespaces every component and modal this bot owns.
const customIDPrefix = "fl"

// viewTTL bounds how long an abandoned setup, list-channel or pagination
// view stays addressable. Matches the editing session timeout.
const viewTTL = 3 * time.Minute

// commandHandler handles one slash command invocation.
type commandHandler func(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error

// componentHandler handles one component or modal interaction. id is the
// identity segment of the custom ID.
type componentHandler func(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error

// Bot owns the Discord session and the dispatch tables.
type Bot struct {
	cfg      config.Config
	dg       *discordgo.Session
	store    storage.Store
	sessions *session.Manager
	mirror   *mirror.Mirror
	guildLog *observability.GuildLog
	metrics  *observability.Metrics
	logger   *slog.Logger

	// Explicit registries: command name -> handler, custom ID kind ->
	// handler. Built once at startup, never via reflection.
	commands   map[string]commandHandler
	components map[string]componentHandler

	mu       sync.Mutex
	setups   map[string]*setupState
	listSets map[string]*listState
	pagers   map[string]*paginator
}

// New constructs the bot and its dispatch tables.
func New(cfg config.Config, store storage.Store, sessions *session.Manager, m *mirror.Mirror, guildLog *observability.GuildLog, metrics *observability.Metrics, logger *slog.Logger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		cfg:      cfg,
		dg:       dg,
		store:    store,
		sessions: sessions,
		mirror:   m,
		guildLog: guildLog,
		metrics:  metrics,
		logger:   logger.With("component", "bot"),
		setups:   make(map[string]*setupState),
		listSets: make(map[string]*listState),
		pagers:   make(map[string]*paginator),
	}
	b.commands = map[string]commandHandler{
		"create":           b.handleCreate,
		"modify":           b.handleModify,
		"remove":           b.handleRemove,
		"locate":           b.handleLocate,
		"setup":            b.handleSetup,
		"set-list-channel": b.handleSetListChannel,
		"logs":             b.handleLogs,
	}
	b.components = map[string]componentHandler{
		"item":        b.handleSessionItemSelect,
		"vehicle":     b.handleSessionVehicleSelect,
		"edit":        b.handleSessionEdit,
		"modal":       b.handleSessionModal,
		"confirm":     b.handleSessionConfirm,
		"quit":        b.handleSessionQuit,
		"remove":      b.handleRemovalConfirm,
		"setuproles":  b.handleSetupRoles,
		"setupok":     b.handleSetupConfirm,
		"listset":     b.handleListSet,
		"listdisable": b.handleListDisable,
		"page":        b.handlePage,
	}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onInteractionCreate)
	return b, nil
}

// Poster returns the mirror's posting surface backed by this session.
func (b *Bot) Poster() mirror.Poster {
	return &sessionPoster{dg: b.dg}
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		b.dg.Close()
		return err
	}
	b.logger.Info("bot started")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.dg.Close()
}

// Run sweeps abandoned view state until ctx is done. Setup, list-channel
// and pagination views that saw no interaction within viewTTL are dropped,
// the same way the session manager expires its sessions.
func (b *Bot) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweepViews(time.Now())
		}
	}
}

func (b *Bot) sweepViews(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, st := range b.setups {
		if now.After(st.deadline) {
			delete(b.setups, id)
		}
	}
	for id, st := range b.listSets {
		if now.After(st.deadline) {
			delete(b.listSets, id)
		}
	}
	for id, p := range b.pagers {
		if now.After(p.deadline) {
			delete(b.pagers, id)
		}
	}
}

// SubscribeEvents attaches the guild activity log to the event bus.
func (b *Bot) SubscribeEvents(bus *events.Bus) {
	bus.Subscribe(func(ctx context.Context, ev events.Event) {
		switch e := ev.(type) {
		case events.FacilityCreate:
			b.guildLog.Record(e.GuildID(), "facility %d (%s) created by <@%s>",
				e.Facility.ID, e.Facility.Name, e.Actor.ID)
		case events.FacilityModify:
			b.guildLog.Record(e.GuildID(), "facility %d (%s) modified by <@%s>",
				e.After.ID, e.After.Name, e.Actor.ID)
		case events.BulkFacilityDelete:
			b.guildLog.Record(e.GuildID(), "%d facilities removed by <@%s>",
				len(e.Facilities), e.Actor.ID)
		}
	})
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("gateway ready", "user", r.User.Username)
}

// actorFrom extracts the authenticated actor for a guild interaction.
func actorFrom(ic *discordgo.InteractionCreate) (facility.Actor, bool) {
	if ic.Member == nil || ic.Member.User == nil || ic.GuildID == "" {
		return facility.Actor{}, false
	}
	return facility.Actor{
		ID:            ic.Member.User.ID,
		GuildID:       ic.GuildID,
		Roles:         ic.Member.Roles,
		Administrator: ic.Member.Permissions&discordgo.PermissionAdministrator != 0,
	}, true
}

// onInteractionCreate routes every interaction through the dispatch tables.
func (b *Bot) onInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	ctx := context.Background()

	actor, ok := actorFrom(ic)
	if !ok {
		// Guild-only bot; ignore DMs and partial payloads.
		return
	}

	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		name := ic.ApplicationCommandData().Name
		handler, ok := b.commands[name]
		if !ok {
			b.logger.Warn("unknown command", "command", name)
			return
		}
		status := "ok"
		if err := handler(ctx, ic, actor); err != nil {
			status = "error"
			b.logger.Error("command failed",
				"error", err, "command", name, "guild_id", actor.GuildID)
		}
		if b.metrics != nil {
			b.metrics.Command(name, status)
		}

	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(ic)

	case discordgo.InteractionMessageComponent:
		kind, id, ok := parseCustomID(ic.MessageComponentData().CustomID)
		if !ok {
			return
		}
		b.dispatchComponent(ctx, ic, actor, kind, id)

	case discordgo.InteractionModalSubmit:
		kind, id, ok := parseCustomID(ic.ModalSubmitData().CustomID)
		if !ok {
			return
		}
		b.dispatchComponent(ctx, ic, actor, kind, id)
	}
}

func (b *Bot) dispatchComponent(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, kind, id string) {
	handler, ok := b.components[kind]
	if !ok {
		b.logger.Warn("unknown component kind", "kind", kind)
		return
	}
	if err := handler(ctx, ic, actor, id); err != nil {
		b.logger.Error("interaction failed",
			"error", err, "kind", kind, "guild_id", actor.GuildID)
	}
}

// customID builds "fl:<kind>:<id>".
func customID(kind, id string) string {
	return strings.Join([]string{customIDPrefix, kind, id}, ":")
}

// parseCustomID splits "fl:<kind>:<id>"; foreign custom IDs are rejected.
func parseCustomID(raw string) (kind, id string, ok bool) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// sessionPoster adapts discordgo to the mirror.Poster interface.
type sessionPoster struct {
	dg *discordgo.Session
}

func (p *sessionPoster) Send(channelID string, embed *discordgo.MessageEmbed) (string, error) {
	msg, err := p.dg.ChannelMessageSendEmbed(channelID, embed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (p *sessionPoster) Edit(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := p.dg.ChannelMessageEditEmbed(channelID, messageID, embed)
	return err
}

func (p *sessionPoster) Delete(channelID, messageID string) error {
	return p.dg.ChannelMessageDelete(channelID, messageID)
}
