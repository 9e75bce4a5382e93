package bot

import (
	"fmt"
	"strings"

	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/bwmarrin/discordgo"
)

// commandDefinitions declares the slash command surface. Names must match
// the keys of Bot.commands.
func commandDefinitions() []*discordgo.ApplicationCommand {
	adminOnly := int64(discordgo.PermissionAdministrator)
	dmDisabled := false

	markerChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(facility.Markers))
	for _, marker := range facility.Markers {
		markerChoices = append(markerChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  marker,
			Value: marker,
		})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:         "create",
			Description:  "Create a facility listing",
			DMPermission: &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Facility name",
					Required:    true,
					MaxLength:   100,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "region",
					Description:  "Region the facility is in, optionally with coordinates (Deadlands-F7)",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "marker",
					Description: "Closest map marker",
					Required:    true,
					Choices:     markerChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "maintainer",
					Description: "Who keeps the facility stocked",
					Required:    true,
					MaxLength:   200,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "coordinates",
					Description: "Grid coordinates within the region",
					MaxLength:   5,
				},
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "image",
					Description: "Picture of the facility",
				},
			},
		},
		{
			Name:         "modify",
			Description:  "Modify an existing facility listing",
			DMPermission: &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "Internal facility ID",
					Required:    true,
					MinValue:    &minFacilityID,
				},
			},
		},
		{
			Name:         "remove",
			Description:  "Remove facility listings",
			DMPermission: &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "ids",
					Description: "Remove facilities by ID",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "ids",
							Description: "Space or comma separated facility IDs",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "user",
					Description: "Remove all facilities created by a user",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "user",
							Description: "Author whose facilities to remove",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "all",
					Description: "Remove every facility in this server (admin only)",
				},
			},
		},
		{
			Name:         "locate",
			Description:  "Find facilities in a region",
			DMPermission: &dmDisabled,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "region",
					Description:  "Region to search",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:                     "setup",
			Description:              "Choose which roles may manage any facility",
			DMPermission:             &dmDisabled,
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     "set-list-channel",
			Description:              "Keep a live facility list in a channel",
			DMPermission:             &dmDisabled,
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel for the list (defaults to the current one)",
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:                     "logs",
			Description:              "Show recent facility activity in this server",
			DMPermission:             &dmDisabled,
			DefaultMemberPermissions: &adminOnly,
		},
	}
}

var minFacilityID = float64(1)

// registerCommands overwrites the application's command set in one call.
// With a guild ID configured the commands are guild-scoped and take effect
// immediately; otherwise they register globally.
func (b *Bot) registerCommands() error {
	defs := commandDefinitions()
	_, err := b.dg.ApplicationCommandBulkOverwrite(b.dg.State.User.ID, b.cfg.Discord.GuildID, defs)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	b.logger.Info("registered commands", "count", len(defs), "guild_id", b.cfg.Discord.GuildID)
	return nil
}

// handleAutocomplete answers region autocompletion for /create and /locate.
func (b *Bot) handleAutocomplete(ic *discordgo.InteractionCreate) {
	data := ic.ApplicationCommandData()
	var focused string
	for _, opt := range data.Options {
		if opt.Focused {
			focused = opt.StringValue()
			break
		}
	}

	needle := strings.ToLower(focused)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 25)
	for _, region := range facility.Regions {
		if needle != "" && !strings.Contains(strings.ToLower(region), needle) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  region,
			Value: region,
		})
		if len(choices) == 25 {
			break
		}
	}

	err := b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		b.logger.Warn("autocomplete response failed", "error", err)
	}
}

// optionMap indexes interaction options by name.
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}
