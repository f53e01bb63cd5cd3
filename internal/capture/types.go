package capture

import "strings"

// Type classifies what a field rep recorded at a visit stop.
type Type string

const (
	TypePhoto     Type = "photo"
	TypeVoiceNote Type = "voice_note"
	TypeNote      Type = "note"
)

var allTypes = []Type{TypePhoto, TypeVoiceNote, TypeNote}

var typeSet = func() map[Type]struct{} {
	set := make(map[Type]struct{}, len(allTypes))
	for _, t := range allTypes {
		set[t] = struct{}{}
	}
	return set
}()

// AllTypes returns the ordered list of known capture types.
func AllTypes() []Type {
	cp := make([]Type, len(allTypes))
	copy(cp, allTypes)
	return cp
}

// ParseType converts a string into a known capture Type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "reaction" {
		normalized = TypeNote
	}
	_, ok := typeSet[normalized]
	return normalized, ok
}

// RequiresAsset reports whether a capture of this type carries uploaded bytes.
// Notes and reactions are text-only and never own a media asset.
func (t Type) RequiresAsset() bool {
	switch t {
	case TypePhoto, TypeVoiceNote:
		return true
	default:
		return false
	}
}

// CapturedBy identifies who recorded a capture during the visit.
type CapturedBy string

const (
	BySales  CapturedBy = "sales"
	ByClient CapturedBy = "client"
)

// ParseCapturedBy converts a string into a known CapturedBy value.
func ParseCapturedBy(value string) (CapturedBy, bool) {
	switch CapturedBy(strings.ToLower(strings.TrimSpace(value))) {
	case BySales:
		return BySales, true
	case ByClient:
		return ByClient, true
	default:
		return "", false
	}
}

// Location is an optional capture geotag.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
