package bot

import (
	"context"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/bwmarrin/discordgo"
)

// setupState tracks one open /setup view.
type setupState struct {
	actorID  string
	selected []string
	deadline time.Time
}

// listState tracks one open /set-list-channel confirmation.
type listState struct {
	actorID   string
	channelID string
	deadline  time.Time
}

// --- editing session components ---

// sessionFor resolves the session behind a component. A missing session
// (expired, restarted) gets an ephemeral notice instead of a dead button.
func (b *Bot) sessionFor(ic *discordgo.InteractionCreate, id string) (*session.Session, bool) {
	s, ok := b.sessions.Session(id)
	if !ok {
		_ = b.respondEphemeral(ic, feedbackError, "This session has ended.")
	}
	return s, ok
}

// ackIgnored acknowledges a component event the session dropped (wrong user
// or a terminal action already in flight) so the client doesn't show a
// failure.
func (b *Bot) ackIgnored(ic *discordgo.InteractionCreate, rend *viewRenderer) error {
	if rend.responded {
		return nil
	}
	return b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
}

func (b *Bot) handleSessionItemSelect(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	rend := b.sessionRenderer(ic, s)
	if err := s.HandleItemSelect(actor, ic.MessageComponentData().Values, rend); err != nil {
		return err
	}
	return b.ackIgnored(ic, rend)
}

func (b *Bot) handleSessionVehicleSelect(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	rend := b.sessionRenderer(ic, s)
	if err := s.HandleVehicleSelect(actor, ic.MessageComponentData().Values, rend); err != nil {
		return err
	}
	return b.ackIgnored(ic, rend)
}

func (b *Bot) handleSessionEdit(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	// The modal must be the interaction response, so ownership is checked
	// here instead of inside the session.
	if !s.Owns(actor) || s.State() != session.StateRendering {
		return b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
	}
	return b.dg.InteractionRespond(ic.Interaction, informationModal(id, s.Facility()))
}

func (b *Bot) handleSessionModal(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	values := modalValues(ic.ModalSubmitData())
	rend := b.sessionRenderer(ic, s)
	err := s.HandleInformation(actor,
		values["name"], values["description"], values["maintainer"], values["image_url"], rend)
	if err != nil {
		return err
	}
	return b.ackIgnored(ic, rend)
}

func (b *Bot) handleSessionConfirm(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	rend := b.sessionRenderer(ic, s)
	if err := s.HandleConfirm(ctx, actor, rend); err != nil {
		return err
	}
	return b.ackIgnored(ic, rend)
}

func (b *Bot) handleSessionQuit(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	s, ok := b.sessionFor(ic, id)
	if !ok {
		return nil
	}
	rend := b.sessionRenderer(ic, s)
	if err := s.HandleQuit(actor, rend); err != nil {
		return err
	}
	return b.ackIgnored(ic, rend)
}

// --- bulk removal confirmation ---

func (b *Bot) handleRemovalConfirm(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	r, ok := b.sessions.Removal(id)
	if !ok {
		return b.respondEphemeral(ic, feedbackError, "This confirmation has expired.")
	}
	if !r.Owns(actor) {
		return b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
	}

	// Disable the button before the store call; success and failure reports
	// then arrive as followups.
	rend := &viewRenderer{dg: b.dg, ic: ic, responded: true}
	err := b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     ic.Message.Embeds,
			Components: removalConfirmRow(id, true),
		},
	})
	if err != nil {
		return err
	}
	return r.Confirm(ctx, actor, rend)
}

// --- setup view ---

func (b *Bot) setupFor(ic *discordgo.InteractionCreate, id string, actor facility.Actor) (*setupState, bool) {
	b.mu.Lock()
	st, ok := b.setups[id]
	b.mu.Unlock()
	if !ok {
		_ = b.respondEphemeral(ic, feedbackError, "This view has expired.")
		return nil, false
	}
	if st.actorID != actor.ID {
		_ = b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
		return nil, false
	}
	return st, true
}

func (b *Bot) handleSetupRoles(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	st, ok := b.setupFor(ic, id, actor)
	if !ok {
		return nil
	}
	b.mu.Lock()
	st.selected = ic.MessageComponentData().Values
	st.deadline = time.Now().Add(viewTTL)
	b.mu.Unlock()
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

func (b *Bot) handleSetupConfirm(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	st, ok := b.setupFor(ic, id, actor)
	if !ok {
		return nil
	}
	b.mu.Lock()
	selected := st.selected
	delete(b.setups, id)
	b.mu.Unlock()

	rend := &viewRenderer{dg: b.dg, ic: ic, responded: true}
	err := b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     ic.Message.Embeds,
			Components: setupRows(id, selected, true),
		},
	})
	if err != nil {
		return err
	}

	if err := b.store.SetRoles(ctx, actor.GuildID, selected); err != nil {
		if ferr := rend.Fail("Failed to save roles: " + err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	b.guildLog.Record(actor.GuildID, "facility roles updated by <@%s>", actor.ID)
	return rend.Success("Facility manager roles updated.")
}

// --- list channel view ---

func (b *Bot) listFor(ic *discordgo.InteractionCreate, id string, actor facility.Actor) (*listState, bool) {
	b.mu.Lock()
	st, ok := b.listSets[id]
	if ok && st.actorID == actor.ID {
		delete(b.listSets, id)
	}
	b.mu.Unlock()
	if !ok {
		_ = b.respondEphemeral(ic, feedbackError, "This view has expired.")
		return nil, false
	}
	if st.actorID != actor.ID {
		_ = b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
		return nil, false
	}
	return st, true
}

// disableListView answers the component interaction by graying the buttons.
func (b *Bot) disableListView(ic *discordgo.InteractionCreate, id string) error {
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     ic.Message.Embeds,
			Components: listRows(id, true),
		},
	})
}

func (b *Bot) handleListSet(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	st, ok := b.listFor(ic, id, actor)
	if !ok {
		return nil
	}
	rend := &viewRenderer{dg: b.dg, ic: ic, responded: true}
	if err := b.disableListView(ic, id); err != nil {
		return err
	}

	// Tear down any previous rendering before pointing the list at the new
	// channel; the mirror then posts fresh pages.
	if prior, err := b.store.GetList(ctx, actor.GuildID); err == nil {
		for _, messageID := range prior.MessageIDs {
			if derr := b.mirror.DeleteMessage(prior.ChannelID, messageID); derr != nil {
				b.logger.Warn("failed to delete old list message",
					"error", derr, "guild_id", actor.GuildID, "message_id", messageID)
			}
		}
	}

	err := b.store.SetList(ctx, storage.ListConfig{
		GuildID:   actor.GuildID,
		ChannelID: st.channelID,
	})
	if err == nil {
		err = b.mirror.Refresh(ctx, actor.GuildID)
	}
	if err != nil {
		if ferr := rend.Fail("Failed to set up the facility list: " + err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	b.guildLog.Record(actor.GuildID, "facility list set to <#%s> by <@%s>", st.channelID, actor.ID)
	return rend.Success("Facility list enabled.")
}

func (b *Bot) handleListDisable(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	if _, ok := b.listFor(ic, id, actor); !ok {
		return nil
	}
	rend := &viewRenderer{dg: b.dg, ic: ic, responded: true}
	if err := b.disableListView(ic, id); err != nil {
		return err
	}

	if prior, err := b.store.GetList(ctx, actor.GuildID); err == nil {
		for _, messageID := range prior.MessageIDs {
			if derr := b.mirror.DeleteMessage(prior.ChannelID, messageID); derr != nil {
				b.logger.Warn("failed to delete old list message",
					"error", derr, "guild_id", actor.GuildID, "message_id", messageID)
			}
		}
	}
	if err := b.store.RemoveList(ctx, actor.GuildID); err != nil {
		if ferr := rend.Fail("Failed to disable the facility list: " + err.Error()); ferr != nil {
			return ferr
		}
		return err
	}
	b.guildLog.Record(actor.GuildID, "facility list disabled by <@%s>", actor.ID)
	return rend.Success("Facility list disabled.")
}

// --- locate pagination ---

type paginator struct {
	authorID string
	pages    []*discordgo.MessageEmbed
	index    int
	deadline time.Time
}

func (p *paginator) current() *discordgo.MessageEmbed {
	return p.pages[p.index]
}

func (p *paginator) rows(id string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Previous",
				Style:    discordgo.SecondaryButton,
				CustomID: customID("page", id+":prev"),
				Disabled: p.index == 0,
			},
			discordgo.Button{
				Label:    "Next",
				Style:    discordgo.SecondaryButton,
				CustomID: customID("page", id+":next"),
				Disabled: p.index == len(p.pages)-1,
			},
		}},
	}
}

type pageResult int

const (
	pageOK pageResult = iota
	pageMissing
	pageForbidden
)

// turnPage applies a page turn and snapshots the rendered page under the
// registry lock, so concurrent clicks never read a half-updated pager.
// A turn also counts as activity and pushes the view's deadline.
func (b *Bot) turnPage(pagerID, direction, actorID string, now time.Time) (*discordgo.MessageEmbed, []discordgo.MessageComponent, pageResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pagers[pagerID]
	if !ok {
		return nil, nil, pageMissing
	}
	if p.authorID != actorID {
		return nil, nil, pageForbidden
	}
	switch direction {
	case "next":
		if p.index < len(p.pages)-1 {
			p.index++
		}
	case "prev":
		if p.index > 0 {
			p.index--
		}
	}
	p.deadline = now.Add(viewTTL)
	return p.current(), p.rows(pagerID), pageOK
}

func (b *Bot) handlePage(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor, id string) error {
	pagerID, direction := id, ""
	if i := len(id) - len(":next"); i > 0 && (id[i:] == ":next" || id[i:] == ":prev") {
		pagerID, direction = id[:i], id[i+1:]
	}

	embed, rows, res := b.turnPage(pagerID, direction, actor.ID, time.Now())
	switch res {
	case pageMissing:
		return b.respondEphemeral(ic, feedbackError, "This view has expired.")
	case pageForbidden:
		return b.respondEphemeral(ic, feedbackWarning, "You can't use this.")
	}
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: rows,
		},
	})
}
