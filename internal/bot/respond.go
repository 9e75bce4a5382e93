package bot

import (
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/bwmarrin/discordgo"
)

type feedbackKind int

const (
	feedbackSuccess feedbackKind = iota
	feedbackInfo
	feedbackWarning
	feedbackError
)

// feedbackEmbed renders a status message in the bot's house style.
func feedbackEmbed(kind feedbackKind, msg string) *discordgo.MessageEmbed {
	var (
		color  int
		prefix string
	)
	switch kind {
	case feedbackSuccess:
		color, prefix = 0x2ECC71, ":white_check_mark: "
	case feedbackInfo:
		color, prefix = 0x3498DB, ":information_source: "
	case feedbackWarning:
		color, prefix = 0xF1C40F, ":warning: "
	default:
		color, prefix = 0xE74C3C, ":x: "
	}
	return &discordgo.MessageEmbed{Description: prefix + msg, Color: color}
}

// respondEphemeral answers an interaction with a private feedback embed.
func (b *Bot) respondEphemeral(ic *discordgo.InteractionCreate, kind feedbackKind, msg string) error {
	return b.dg.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{feedbackEmbed(kind, msg)},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

// viewRenderer implements session.Renderer on top of one component or
// modal interaction. The first Render answers the interaction by updating
// the view message; every report after the first response becomes an
// ephemeral followup.
type viewRenderer struct {
	dg *discordgo.Session
	ic *discordgo.InteractionCreate

	// view projects the entity into the message being updated.
	view func(f *facility.Facility, disabled bool) (*discordgo.MessageEmbed, []discordgo.MessageComponent)

	responded bool
}

func (r *viewRenderer) Render(f *facility.Facility, disabled bool) error {
	embed, components := r.view(f, disabled)
	if !r.responded {
		r.responded = true
		return r.dg.InteractionRespond(r.ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{embed},
				Components: components,
			},
		})
	}
	_, err := r.dg.InteractionResponseEdit(r.ic.Interaction, &discordgo.WebhookEdit{
		Embeds:     &[]*discordgo.MessageEmbed{embed},
		Components: &components,
	})
	return err
}

func (r *viewRenderer) Warn(msg string) error    { return r.feedback(feedbackWarning, msg) }
func (r *viewRenderer) Success(msg string) error { return r.feedback(feedbackSuccess, msg) }
func (r *viewRenderer) Fail(msg string) error    { return r.feedback(feedbackError, msg) }

func (r *viewRenderer) feedback(kind feedbackKind, msg string) error {
	embed := feedbackEmbed(kind, msg)
	if !r.responded {
		r.responded = true
		return r.dg.InteractionRespond(r.ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
				Flags:  discordgo.MessageFlagsEphemeral,
			},
		})
	}
	_, err := r.dg.FollowupMessageCreate(r.ic.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
	return err
}
