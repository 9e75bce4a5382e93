package facility

// Service is one offerable service flag within a category. Flags are stable
// bit positions; persisted bitmasks depend on them never being reordered.
type Service struct {
	Flag uint64
	Name string
}

// ItemServices is the fixed vocabulary of item-related services.
var ItemServices = []Service{
	{1 << 0, "Construction Materials"},
	{1 << 1, "Processed Materials"},
	{1 << 2, "Refined Materials"},
	{1 << 3, "Explosive Materials"},
	{1 << 4, "Heavy Explosive Materials"},
	{1 << 5, "Fuel"},
	{1 << 6, "Components"},
	{1 << 7, "Garrison Supplies"},
	{1 << 8, "Metal Beams"},
	{1 << 9, "Sandbags"},
	{1 << 10, "Barbed Wire"},
}

// VehicleServices is the fixed vocabulary of vehicle-related services.
var VehicleServices = []Service{
	{1 << 0, "Light Vehicles"},
	{1 << 1, "Heavy Vehicles"},
	{1 << 2, "Tanks"},
	{1 << 3, "Trains"},
	{1 << 4, "Ships"},
	{1 << 5, "Cranes"},
	{1 << 6, "Trailers"},
	{1 << 7, "Vehicle Upgrades"},
	{1 << 8, "Vehicle Modifications"},
}

// Regions is the set of known world regions. Region arguments are resolved
// against this list (case-insensitively) before a handler runs.
var Regions = []string{
	"Acrithia",
	"Allods Bight",
	"Ash Fields",
	"Basin Sionnach",
	"Callahans Passage",
	"Callums Cape",
	"Clanshead Valley",
	"Deadlands",
	"Endless Shore",
	"Farranac Coast",
	"Fishermans Row",
	"Godcrofts",
	"Great March",
	"Howl County",
	"Kalokai",
	"Kings Cage",
	"Loch Mor",
	"Marban Hollow",
	"Morgens Crossing",
	"Nevish Line",
	"Oarbreaker Isles",
	"Origin",
	"Red River",
	"Reaching Trail",
	"Sableport",
	"Shackled Chasm",
	"Speaking Woods",
	"Stema Landing",
	"Stonecradle",
	"Tempest Island",
	"Terminus",
	"The Drowned Vale",
	"The Fingers",
	"The Heartlands",
	"The Linn of Mercy",
	"The Moors",
	"The Oarbreaker Isles",
	"Umbral Wildwood",
	"Viper Pit",
	"Weathered Expanse",
	"Westgate",
}

// Markers is the location-marker vocabulary: the nearest townhall, relic or
// named landmark a facility can be pinned to.
var Markers = []string{
	"Town Base",
	"Relic Base",
	"Safehouse",
	"Seaport",
	"Storage Depot",
	"Garrison Station",
	"Observation Tower",
	"Border Base",
	"Keep",
	"Fort",
	"Refinery",
	"Mass Production Factory",
}

// ValidRegion reports whether name matches a known region exactly.
func ValidRegion(name string) bool {
	for _, r := range Regions {
		if r == name {
			return true
		}
	}
	return false
}

// ValidMarker reports whether name matches the marker vocabulary exactly.
func ValidMarker(name string) bool {
	for _, m := range Markers {
		if m == name {
			return true
		}
	}
	return false
}

func servicesFor(vehicle bool) []Service {
	if vehicle {
		return VehicleServices
	}
	return ItemServices
}

// maskFromNames folds the named flags of one category into a bitmask.
// Names outside the vocabulary are skipped; the enumeration layer that
// produced the selection has already constrained them.
func maskFromNames(names []string, vehicle bool) uint64 {
	var mask uint64
	for _, name := range names {
		for _, svc := range servicesFor(vehicle) {
			if svc.Name == name {
				mask |= svc.Flag
				break
			}
		}
	}
	return mask
}

// namesFromMask expands a bitmask into the flag names it covers, in
// vocabulary order.
func namesFromMask(mask uint64, vehicle bool) []string {
	var names []string
	for _, svc := range servicesFor(vehicle) {
		if mask&svc.Flag != 0 {
			names = append(names, svc.Name)
		}
	}
	return names
}
