package models

// GroupKind discriminates the two parallel group flavours.
type GroupKind string

const (
	KindGang   GroupKind = "gang"
	KindFamily GroupKind = "family"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []GroupKind{KindGang, KindFamily}

func (k GroupKind) Valid() bool {
	return k == KindGang || k == KindFamily
}

// CodePrefix is the invite code prefix for the kind, e.g. "GANG" in "GANG-7Q2X".
func (k GroupKind) CodePrefix() string {
	switch k {
	case KindGang:
		return "GANG"
	case KindFamily:
		return "FAM"
	default:
		return ""
	}
}

func (k GroupKind) String() string {
	return string(k)
}
