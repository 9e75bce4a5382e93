// Package facility holds the facility entity, its service vocabularies and
// the validation, authorization and diffing rules that gate every commit.
package facility

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// ErrNoServices is returned when a facility is validated with neither an
// item nor a vehicle service selected.
var ErrNoServices = errors.New("facility has no services selected")

// Actor identifies the user driving a command or interaction, together with
// the guild context the permission checks run against.
type Actor struct {
	ID            string
	GuildID       string
	Roles         []string
	Administrator bool
}

// Facility is one persisted listing. ID is zero until the first successful
// commit assigns one; CreationTime is set exactly once at that point.
type Facility struct {
	ID              int64
	Name            string
	Region          string
	Coordinates     string
	Maintainer      string
	Marker          string
	Author          string
	GuildID         string
	ImageURL        string
	ItemServices    uint64
	VehicleServices uint64
	Description     string
	CreationTime    int64

	initial *Facility
}

// New constructs a transient facility owned by author in guild. Coordinates
// are normalized to uppercase.
func New(name, region, coordinates, marker, maintainer, author, guildID, imageURL string) *Facility {
	return &Facility{
		Name:        name,
		Region:      region,
		Coordinates: strings.ToUpper(coordinates),
		Marker:      marker,
		Maintainer:  maintainer,
		Author:      author,
		GuildID:     guildID,
		ImageURL:    imageURL,
	}
}

// Snapshot captures the current field values as the baseline for Changed.
// Call it when an editing session takes ownership of the entity.
func (f *Facility) Snapshot() {
	clone := *f
	clone.initial = nil
	f.initial = &clone
}

// Initial returns the snapshot taken by Snapshot, or nil if none was taken.
// The mirror uses it as the "before" image of a modify event.
func (f *Facility) Initial() *Facility {
	return f.initial
}

// Changed reports whether any attribute other than ID and CreationTime
// differs from the snapshot. Without a snapshot every edit counts as a
// change.
func (f *Facility) Changed() bool {
	if f.initial == nil {
		return true
	}
	i := f.initial
	return f.Name != i.Name ||
		f.Region != i.Region ||
		f.Coordinates != i.Coordinates ||
		f.Maintainer != i.Maintainer ||
		f.Marker != i.Marker ||
		f.Author != i.Author ||
		f.GuildID != i.GuildID ||
		f.ImageURL != i.ImageURL ||
		f.ItemServices != i.ItemServices ||
		f.VehicleServices != i.VehicleServices ||
		f.Description != i.Description
}

// Validate enforces the commit invariant: at least one service bit set
// across both categories.
func (f *Facility) Validate() error {
	if f.ItemServices == 0 && f.VehicleServices == 0 {
		return ErrNoServices
	}
	return nil
}

// SetServices replaces the bitmask of one category from the selected flag
// names. Unknown names are ignored.
func (f *Facility) SetServices(names []string, vehicle bool) {
	mask := maskFromNames(names, vehicle)
	if vehicle {
		f.VehicleServices = mask
	} else {
		f.ItemServices = mask
	}
}

// ServiceNames returns the display names of the set flags in one category.
func (f *Facility) ServiceNames(vehicle bool) []string {
	if vehicle {
		return namesFromMask(f.VehicleServices, true)
	}
	return namesFromMask(f.ItemServices, false)
}

// Option is one renderable select-menu entry.
type Option struct {
	Label   string
	Value   string
	Default bool
}

// SelectOptions projects one category into select options with the
// currently-set flags pre-selected. Pure projection, no mutation.
func (f *Facility) SelectOptions(vehicle bool) []Option {
	mask := f.ItemServices
	if vehicle {
		mask = f.VehicleServices
	}
	services := servicesFor(vehicle)
	options := make([]Option, 0, len(services))
	for _, svc := range services {
		options = append(options, Option{
			Label:   svc.Name,
			Value:   svc.Name,
			Default: mask&svc.Flag != 0,
		})
	}
	return options
}

// CanModify is the sole authorization predicate for modify and remove:
// the author, a holder of one of the guild's facility-admin roles, or a
// guild administrator.
func (f *Facility) CanModify(actor Actor, facilityRoles []string) bool {
	if actor.Administrator {
		return true
	}
	if actor.ID == f.Author {
		return true
	}
	for _, held := range actor.Roles {
		for _, allowed := range facilityRoles {
			if held == allowed {
				return true
			}
		}
	}
	return false
}

const embedColor = 0x54A24A

// Embed renders the facility for display. No side effects.
func (f *Facility) Embed() *discordgo.MessageEmbed {
	location := f.Region
	if f.Coordinates != "" {
		location = fmt.Sprintf("%s-%s", f.Region, f.Coordinates)
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Region-Coordinates", Value: location, Inline: true},
		{Name: "Marker", Value: f.Marker, Inline: true},
		{Name: "Maintainer", Value: f.Maintainer, Inline: true},
	}
	if names := f.ServiceNames(false); len(names) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Item Services",
			Value: strings.Join(names, "\n"),
		})
	}
	if names := f.ServiceNames(true); len(names) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Vehicle Services",
			Value: strings.Join(names, "\n"),
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       f.Name,
		Description: f.Description,
		Color:       embedColor,
		Fields:      fields,
	}
	if f.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: f.ImageURL}
	}
	if f.ID != 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Internal ID: %d", f.ID),
		}
	}
	return embed
}
