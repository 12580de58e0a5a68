package demo

// displayNames maps engine map identifiers to the display form shown
// to users. Unknown identifiers pass through unchanged so new maps
// don't break ingestion.
var displayNames = map[string]string{
	"de_dust2":    "Dust II",
	"de_train":    "Train",
	"de_mirage":   "Mirage",
	"de_overpass": "Overpass",
	"de_nuke":     "Nuke",
	"de_inferno":  "Inferno",
	"de_ancient":  "Ancient",
	"de_vertigo":  "Vertigo",
	"de_cache":    "Cache",
	"de_assult":   "Assault",
	"cs_italy":    "Italy",
	"de_biome":    "Biome",
	"de_zoo":      "Zoo",
	"de_canals":   "Canals",
	"cs_agency":   "Agency",
	"cs_office":   "Office",
}

// DisplayMapName normalizes an engine map identifier to its display
// form.
func DisplayMapName(id string) string {
	if name, ok := displayNames[id]; ok {
		return name
	}
	return id
}
