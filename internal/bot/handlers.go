package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/AlexJFox/FacilityLocator/internal/storage"
	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// checkCooldown gates a command and answers the interaction itself when the
// user has to wait. Returns false when the command must not proceed.
func (b *Bot) checkCooldown(ic *discordgo.InteractionCreate, actor facility.Actor, command string) bool {
	err := b.sessions.TryCooldown(actor.GuildID, actor.ID, command)
	if err == nil {
		return true
	}
	var cd *session.CooldownError
	if errors.As(err, &cd) {
		_ = b.respondEphemeral(ic, feedbackWarning,
			fmt.Sprintf("You're doing that too fast. Try again in %s.", cd.Remaining.Round(time.Second)))
	}
	return false
}

// parseLocation accepts either a plain region name or "Region-COORDS", the
// form the region autocomplete produces when users paste a full location.
func parseLocation(input, coordinates string) (region, coords string, err error) {
	region, coords = input, coordinates
	if !facility.ValidRegion(region) {
		if i := strings.LastIndex(input, "-"); i > 0 && facility.ValidRegion(input[:i]) {
			region = input[:i]
			if coords == "" {
				coords = input[i+1:]
			}
		} else {
			return "", "", fmt.Errorf("unknown region %q", input)
		}
	}
	return region, coords, nil
}

func (b *Bot) handleCreate(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !b.checkCooldown(ic, actor, "create") {
		return nil
	}
	data := ic.ApplicationCommandData()
	opts := optionMap(data.Options)

	coordinates := ""
	if opt, ok := opts["coordinates"]; ok {
		coordinates = opt.StringValue()
	}
	region, coordinates, err := parseLocation(opts["region"].StringValue(), coordinates)
	if err != nil {
		return b.respondEphemeral(ic, feedbackError, "Unknown region. Pick one from the suggestions.")
	}

	imageURL := ""
	if opt, ok := opts["image"]; ok && data.Resolved != nil {
		if att, ok := data.Resolved.Attachments[opt.Value.(string)]; ok {
			imageURL = att.URL
		}
	}

	f := facility.New(
		opts["name"].StringValue(),
		region,
		coordinates,
		opts["marker"].StringValue(),
		opts["maintainer"].StringValue(),
		actor.ID,
		actor.GuildID,
		imageURL,
	)

	var s *session.Session
	s, err = b.sessions.StartCreate(ctx, actor, f, func() {
		b.disableSessionView(ic, s)
	})
	switch {
	case errors.Is(err, session.ErrBusy):
		return b.respondEphemeral(ic, feedbackWarning, "You're already creating a facility. Finish or quit that one first.")
	case errors.Is(err, session.ErrQuota):
		return b.respondEphemeral(ic, feedbackError, "You've reached the facility limit for this server.")
	case err != nil:
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}

	return b.respondSessionView(ic, s)
}

func (b *Bot) handleModify(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !b.checkCooldown(ic, actor, "modify") {
		return nil
	}
	opts := optionMap(ic.ApplicationCommandData().Options)
	id := opts["id"].IntValue()

	f, err := b.store.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && f.GuildID != actor.GuildID) {
		return b.respondEphemeral(ic, feedbackError,
			fmt.Sprintf("No facility found with ID `%d`.", id))
	}
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}

	if actor.ID != b.cfg.Discord.OwnerID {
		roles, err := b.store.GetRoles(ctx, actor.GuildID)
		if err != nil {
			_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
			return err
		}
		if !f.CanModify(actor, roles) {
			return b.respondEphemeral(ic, feedbackError, "You don't have permission to modify this facility.")
		}
	}

	var s *session.Session
	s, err = b.sessions.StartModify(ctx, actor, f, func() {
		b.disableSessionView(ic, s)
	})
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}
	return b.respondSessionView(ic, s)
}

// respondSessionView answers the opening slash command with the editing view.
func (b *Bot) respondSessionView(ic *discordgo.InteractionCreate, s *session.Session) error {
	embed, components := sessionView(s.ID(), s.Mode(), s.Facility(), false)
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

// disableSessionView redraws the opening response inert. Used on timeout,
// when no interaction is around to answer.
func (b *Bot) disableSessionView(ic *discordgo.InteractionCreate, s *session.Session) {
	if s == nil {
		return
	}
	embed, components := sessionView(s.ID(), s.Mode(), s.Facility(), true)
	_, err := b.dg.InteractionResponseEdit(ic.Interaction, &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	})
	if err != nil {
		b.logger.Warn("failed to disable expired view", "error", err, "session_id", s.ID())
	}
}

// parseIDList accepts comma or whitespace separated numeric IDs.
func parseIDList(input string) ([]int64, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, errors.New("no IDs given")
	}
	ids := make([]int64, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a facility ID", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Bot) handleRemove(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !b.checkCooldown(ic, actor, "remove") {
		return nil
	}
	sub := ic.ApplicationCommandData().Options[0]

	var (
		found     []*facility.Facility
		requested int
		err       error
	)
	switch sub.Name {
	case "ids":
		ids, perr := parseIDList(sub.Options[0].StringValue())
		if perr != nil {
			return b.respondEphemeral(ic, feedbackError, "IDs must be numbers separated by spaces or commas.")
		}
		requested = len(ids)
		found, err = b.store.GetByIDs(ctx, ids)
	case "user":
		target := sub.Options[0].UserValue(nil)
		found, err = b.store.Query(ctx, map[string]any{
			"guild_id": actor.GuildID,
			"author":   target.ID,
		})
		requested = len(found)
	case "all":
		if !actor.Administrator {
			return b.respondEphemeral(ic, feedbackError, "Only administrators can remove every facility.")
		}
		found, err = b.store.Query(ctx, map[string]any{"guild_id": actor.GuildID})
		requested = len(found)
	default:
		return fmt.Errorf("unknown remove subcommand %q", sub.Name)
	}
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}

	roles, err := b.store.GetRoles(ctx, actor.GuildID)
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}
	set := session.Partition(found, requested, actor, roles)

	r, err := b.sessions.StartRemoval(actor, set)
	if errors.Is(err, session.ErrNoEligible) {
		return b.respondEphemeral(ic, feedbackError, "No facilities found or you do not have permission to remove them.")
	}
	if err != nil {
		return err
	}

	lines := []string{fmt.Sprintf(":warning: You are about to remove **%d** %s.",
		len(set.Eligible), pluralWord("facility", "facilities", len(set.Eligible)))}
	if set.NotFound > 0 {
		lines = append(lines, fmt.Sprintf(":x: %d ID(s) matched nothing.", set.NotFound))
	}
	if set.Denied > 0 {
		lines = append(lines, fmt.Sprintf(":no_entry: %d could not be removed due to missing permission.", set.Denied))
	}

	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Description: strings.Join(lines, "\n"),
				Color:       0xF1C40F,
			}},
			Components: removalConfirmRow(r.ID(), false),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func removalConfirmRow(removalID string, disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Remove",
				Style:    discordgo.DangerButton,
				CustomID: customID("remove", removalID),
				Disabled: disabled,
			},
		}},
	}
}

func (b *Bot) handleLocate(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !b.checkCooldown(ic, actor, "locate") {
		return nil
	}
	opts := optionMap(ic.ApplicationCommandData().Options)
	region, _, err := parseLocation(opts["region"].StringValue(), "")
	if err != nil {
		return b.respondEphemeral(ic, feedbackError, "Unknown region. Pick one from the suggestions.")
	}

	facilities, err := b.store.Query(ctx, map[string]any{
		"guild_id": actor.GuildID,
		"region":   region,
	})
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}
	if len(facilities) == 0 {
		return b.respondEphemeral(ic, feedbackError, "No facilities found in "+region+".")
	}

	pages := make([]*discordgo.MessageEmbed, 0, len(facilities))
	for _, f := range facilities {
		pages = append(pages, f.Embed())
	}
	if len(pages) == 1 {
		return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: pages,
				Flags:  discordgo.MessageFlagsEphemeral,
			},
		})
	}

	p := &paginator{authorID: actor.ID, pages: pages, deadline: time.Now().Add(viewTTL)}
	id := uuid.NewString()
	b.mu.Lock()
	b.pagers[id] = p
	b.mu.Unlock()

	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{p.current()},
			Components: p.rows(id),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleSetup(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !actor.Administrator {
		return b.respondEphemeral(ic, feedbackError, "Only administrators can run setup.")
	}
	current, err := b.store.GetRoles(ctx, actor.GuildID)
	if err != nil {
		_ = b.respondEphemeral(ic, feedbackError, "Something went wrong. Try again later.")
		return err
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.setups[id] = &setupState{
		actorID:  actor.ID,
		selected: current,
		deadline: time.Now().Add(viewTTL),
	}
	b.mu.Unlock()

	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{feedbackEmbed(feedbackInfo,
				"Select the roles allowed to modify and remove any facility in this server, then confirm.")},
			Components: setupRows(id, current, false),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func setupRows(setupID string, selected []string, disabled bool) []discordgo.MessageComponent {
	minValues := 0
	menu := discordgo.SelectMenu{
		MenuType:    discordgo.RoleSelectMenu,
		CustomID:    customID("setuproles", setupID),
		Placeholder: "Select facility manager roles...",
		MinValues:   &minValues,
		MaxValues:   10,
		Disabled:    disabled,
	}
	for _, roleID := range selected {
		menu.DefaultValues = append(menu.DefaultValues, discordgo.SelectMenuDefaultValue{
			ID:   roleID,
			Type: discordgo.SelectMenuDefaultValueRole,
		})
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Confirm",
				Style:    discordgo.SuccessButton,
				CustomID: customID("setupok", setupID),
				Disabled: disabled,
			},
		}},
	}
}

func (b *Bot) handleSetListChannel(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !actor.Administrator {
		return b.respondEphemeral(ic, feedbackError, "Only administrators can configure the facility list.")
	}
	channelID := ic.ChannelID
	if opts := optionMap(ic.ApplicationCommandData().Options); opts["channel"] != nil {
		channelID = opts["channel"].ChannelValue(nil).ID
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.listSets[id] = &listState{
		actorID:   actor.ID,
		channelID: channelID,
		deadline:  time.Now().Add(viewTTL),
	}
	b.mu.Unlock()

	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{feedbackEmbed(feedbackInfo,
				fmt.Sprintf("Post the facility list in <#%s> and keep it updated?", channelID))},
			Components: listRows(id, false),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
}

func listRows(listID string, disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Confirm",
				Style:    discordgo.SuccessButton,
				CustomID: customID("listset", listID),
				Disabled: disabled,
			},
			discordgo.Button{
				Label:    "Disable list",
				Style:    discordgo.DangerButton,
				CustomID: customID("listdisable", listID),
				Disabled: disabled,
			},
		}},
	}
}

func (b *Bot) handleLogs(ctx context.Context, ic *discordgo.InteractionCreate, actor facility.Actor) error {
	if !actor.Administrator {
		return b.respondEphemeral(ic, feedbackError, "Only administrators can view the activity log.")
	}
	entries := b.guildLog.Entries(actor.GuildID)
	if len(entries) == 0 {
		return b.respondEphemeral(ic, feedbackInfo, "No recent facility activity.")
	}

	// Newest last; drop oldest lines if the embed would overflow.
	body := strings.Join(entries, "\n")
	for len(body) > 4000 && len(entries) > 1 {
		entries = entries[1:]
		body = strings.Join(entries, "\n")
	}
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Facility activity",
				Description: body,
				Color:       0x3498DB,
			}},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

func pluralWord(one, many string, n int) string {
	if n == 1 {
		return one
	}
	return many
}
