package rotation

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Family classifies a crop for rotation purposes.
type Family uint8

const (
	// FamilyNone is the family of NoCrop.
	FamilyNone Family = iota
	Cereal
	Legume
)

// String returns the lowercase family name.
func (f Family) String() string {
	switch f {
	case Cereal:
		return "cereal"
	case Legume:
		return "legume"
	default:
		return ""
	}
}

// Crop is one of the recognized rotation crops.
// The zero value NoCrop marks an empty history slot.
type Crop uint8

const (
	NoCrop Crop = iota
	Sorghum
	Wheat
	Mungbean
	Chickpea
)

var cropNames = [...]string{
	NoCrop:   "",
	Sorghum:  "sorghum",
	Wheat:    "wheat",
	Mungbean: "mungbean",
	Chickpea: "chickpea",
}

var cropFamilies = [...]Family{
	NoCrop:   FamilyNone,
	Sorghum:  Cereal,
	Wheat:    Cereal,
	Mungbean: Legume,
	Chickpea: Legume,
}

// cropsByName maps normalized names to crops. NoCrop is not reachable by name.
var cropsByName = map[string]Crop{
	"sorghum":  Sorghum,
	"wheat":    Wheat,
	"mungbean": Mungbean,
	"chickpea": Chickpea,
}

// Crops returns every recognized crop in declaration order.
func Crops() []Crop {
	return []Crop{Sorghum, Wheat, Mungbean, Chickpea}
}

// String returns the normalized crop name, or "" for NoCrop.
func (c Crop) String() string {
	if int(c) >= len(cropNames) {
		return ""
	}
	return cropNames[c]
}

// Family returns the crop's family, FamilyNone for NoCrop.
func (c Crop) Family() Family {
	if int(c) >= len(cropFamilies) {
		return FamilyNone
	}
	return cropFamilies[c]
}

// IsCereal reports whether the crop belongs to the cereal family.
func (c Crop) IsCereal() bool { return c.Family() == Cereal }

// IsLegume reports whether the crop belongs to the legume family.
func (c Crop) IsLegume() bool { return c.Family() == Legume }

// Valid reports whether c is a recognized crop (not NoCrop).
func (c Crop) Valid() bool { return c.Family() != FamilyNone }

// Normalize lower-cases a crop name with language-neutral rules.
// Surrounding whitespace is significant: " wheat" is not a crop. Full case
// folding is not applied, so "ſorghum" (long s) stays unrecognized.
func Normalize(name string) string {
	// A Caser keeps state between calls, so a fresh one is taken per call.
	return cases.Lower(language.Und).String(name)
}

// LookupCrop returns the crop for name, compared case-insensitively.
// ok is false when name is not a recognized rotation crop.
func LookupCrop(name string) (crop Crop, ok bool) {
	crop, ok = cropsByName[Normalize(name)]
	return crop, ok
}

// ParseCrop is LookupCrop returning *UnknownCropError for unrecognized names.
func ParseCrop(name string) (Crop, error) {
	crop, ok := LookupCrop(name)
	if !ok {
		return NoCrop, &UnknownCropError{Crop: name}
	}
	return crop, nil
}
