// Package mirror keeps a guild's facility list rendered in its configured
// channel, driven by domain events and a periodic reconcile.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AlexJFox/FacilityLocator/internal/events"
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
)

// facilitiesPerPage bounds embed size well under Discord's field limit.
const facilitiesPerPage = 10

// Poster is the slice of the chat API the mirror needs.
type Poster interface {
	Send(channelID string, embed *discordgo.MessageEmbed) (messageID string, err error)
	Edit(channelID, messageID string, embed *discordgo.MessageEmbed) error
	Delete(channelID, messageID string) error
}

// Mirror subscribes to facility events and re-renders affected guild lists.
type Mirror struct {
	store  storage.Store
	poster Poster
	logger *slog.Logger
}

// New creates a mirror.
func New(store storage.Store, poster Poster, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:  store,
		poster: poster,
		logger: logger.With("component", "mirror"),
	}
}

// SetPoster installs the chat surface. The bot owns the underlying session
// and is constructed after the mirror, so the poster arrives late.
func (m *Mirror) SetPoster(p Poster) {
	m.poster = p
}

// DeleteMessage removes one posted list message.
func (m *Mirror) DeleteMessage(channelID, messageID string) error {
	return m.poster.Delete(channelID, messageID)
}

// HandleEvent re-renders the list for the event's guild, if one is
// configured. Failures are logged and never retried within the event.
func (m *Mirror) HandleEvent(ctx context.Context, ev events.Event) {
	guildID := ev.GuildID()
	if guildID == "" {
		return
	}
	if err := m.Refresh(ctx, guildID); err != nil {
		m.logger.Error("failed to refresh facility list",
			"error", err,
			"event", ev.Name(),
			"guild_id", guildID)
	}
}

// Refresh re-renders one guild's list into its stored messages, recreating
// them when the page count changed.
func (m *Mirror) Refresh(ctx context.Context, guildID string) error {
	cfg, err := m.store.GetList(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	facilities, err := m.store.Query(ctx, map[string]any{"guild_id": guildID})
	if err != nil {
		return err
	}
	pages := RenderList(facilities)

	if len(pages) == len(cfg.MessageIDs) {
		for i, page := range pages {
			if err := m.poster.Edit(cfg.ChannelID, cfg.MessageIDs[i], page); err != nil {
				return fmt.Errorf("failed to edit list message: %w", err)
			}
		}
		return nil
	}

	// Page count changed: replace the whole rendering.
	for _, messageID := range cfg.MessageIDs {
		if err := m.poster.Delete(cfg.ChannelID, messageID); err != nil {
			m.logger.Warn("failed to delete stale list message",
				"error", err, "guild_id", guildID, "message_id", messageID)
		}
	}
	messageIDs := make([]string, 0, len(pages))
	for _, page := range pages {
		id, err := m.poster.Send(cfg.ChannelID, page)
		if err != nil {
			return fmt.Errorf("failed to post list message: %w", err)
		}
		messageIDs = append(messageIDs, id)
	}
	cfg.MessageIDs = messageIDs
	return m.store.SetList(ctx, cfg)
}

// RefreshAll reconciles every guild with a configured list.
func (m *Mirror) RefreshAll(ctx context.Context) {
	guilds, err := m.store.ListGuildsWithList(ctx)
	if err != nil {
		m.logger.Error("failed to list mirrored guilds", "error", err)
		return
	}
	for _, guildID := range guilds {
		if err := m.Refresh(ctx, guildID); err != nil {
			m.logger.Error("failed to reconcile facility list",
				"error", err, "guild_id", guildID)
		}
	}
}

// Schedule registers the periodic reconcile on c.
func (m *Mirror) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		m.RefreshAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule list reconcile: %w", err)
	}
	return nil
}

// RenderList projects facilities into list-page embeds. An empty list
// renders a single placeholder page.
func RenderList(facilities []*facility.Facility) []*discordgo.MessageEmbed {
	if len(facilities) == 0 {
		return []*discordgo.MessageEmbed{{
			Title:       "Facilities",
			Description: "No facilities registered.",
			Color:       0x54A24A,
		}}
	}

	var pages []*discordgo.MessageEmbed
	for start := 0; start < len(facilities); start += facilitiesPerPage {
		end := start + facilitiesPerPage
		if end > len(facilities) {
			end = len(facilities)
		}
		page := &discordgo.MessageEmbed{
			Title: "Facilities",
			Color: 0x54A24A,
		}
		for _, f := range facilities[start:end] {
			location := f.Region
			if f.Coordinates != "" {
				location += "-" + f.Coordinates
			}
			lines := []string{
				fmt.Sprintf("%s | %s", location, f.Marker),
				"Maintainer: " + f.Maintainer,
			}
			services := append(f.ServiceNames(false), f.ServiceNames(true)...)
			if len(services) > 0 {
				lines = append(lines, "Services: "+strings.Join(services, ", "))
			}
			page.Fields = append(page.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s (ID %d)", f.Name, f.ID),
				Value: strings.Join(lines, "\n"),
			})
		}
		pages = append(pages, page)
	}
	return pages
}
