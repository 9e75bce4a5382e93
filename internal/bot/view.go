package bot

import (
	"github.com/AlexJFox/FacilityLocator/internal/facility"
	"github.com/AlexJFox/FacilityLocator/internal/session"
	"github.com/bwmarrin/discordgo"
)

// sessionView projects a facility editing session into its embed and
// component rows: two service selects, the confirm/edit/quit button row.
func sessionView(sessionID string, mode session.Mode, f *facility.Facility, disabled bool) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	confirmLabel := "Create"
	if mode == session.ModeModify {
		confirmLabel = "Update"
	}

	rows := []discordgo.MessageComponent{
		serviceSelectRow(customID("item", sessionID), "Select item services...", f.SelectOptions(false), disabled),
		serviceSelectRow(customID("vehicle", sessionID), "Select vehicle services...", f.SelectOptions(true), disabled),
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    confirmLabel,
				Style:    discordgo.SuccessButton,
				CustomID: customID("confirm", sessionID),
				Disabled: disabled,
			},
			discordgo.Button{
				Label:    "Add Description/Edit",
				Style:    discordgo.SecondaryButton,
				CustomID: customID("edit", sessionID),
				Disabled: disabled,
			},
			discordgo.Button{
				Label:    "Quit",
				Style:    discordgo.DangerButton,
				CustomID: customID("quit", sessionID),
				Disabled: disabled,
			},
		}},
	}
	return f.Embed(), rows
}

func serviceSelectRow(id, placeholder string, options []facility.Option, disabled bool) discordgo.MessageComponent {
	minValues := 0
	menu := discordgo.SelectMenu{
		CustomID:    id,
		Placeholder: placeholder,
		MinValues:   &minValues,
		MaxValues:   len(options),
		Disabled:    disabled,
	}
	for _, opt := range options {
		menu.Options = append(menu.Options, discordgo.SelectMenuOption{
			Label:   opt.Label,
			Value:   opt.Value,
			Default: opt.Default,
		})
	}
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}}
}

// sessionRenderer binds a viewRenderer to one session's view.
func (b *Bot) sessionRenderer(ic *discordgo.InteractionCreate, s *session.Session) *viewRenderer {
	return &viewRenderer{
		dg: b.dg,
		ic: ic,
		view: func(f *facility.Facility, disabled bool) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
			return sessionView(s.ID(), s.Mode(), f, disabled)
		},
	}
}

// informationModal is the description-edit modal, prefilled with the current
// entity fields.
func informationModal(sessionID string, f *facility.Facility) *discordgo.InteractionResponse {
	row := func(id, label string, style discordgo.TextInputStyle, value string, maxLength int) discordgo.MessageComponent {
		return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:  id,
				Label:     label,
				Style:     style,
				Value:     value,
				Required:  false,
				MaxLength: maxLength,
			},
		}}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID("modal", sessionID),
			Title:    "Edit Facility Information",
			Components: []discordgo.MessageComponent{
				row("name", "Facility Name", discordgo.TextInputShort, f.Name, 100),
				row("maintainer", "Maintainer", discordgo.TextInputShort, f.Maintainer, 200),
				row("description", "Description", discordgo.TextInputParagraph, f.Description, 1000),
				row("image_url", "Image URL", discordgo.TextInputShort, f.ImageURL, 300),
			},
		},
	}
}

// modalValues flattens a modal submission into field id -> entered value.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			if input, ok := comp.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
