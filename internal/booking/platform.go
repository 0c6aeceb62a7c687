package booking

import "strings"

// Platform identifies a third-party booking site.
type Platform string

const (
	PlatformCalendly     Platform = "calendly"
	PlatformHousecallPro Platform = "housecallpro"
	PlatformOpenTable    Platform = "opentable"
)

// Platforms lists every supported platform in presentation order.
var Platforms = []Platform{PlatformCalendly, PlatformHousecallPro, PlatformOpenTable}

var displayNames = map[Platform]string{
	PlatformCalendly:     "Calendly",
	PlatformHousecallPro: "Housecall Pro",
	PlatformOpenTable:    "OpenTable",
}

// DisplayName is the platform's name as users know it.
func DisplayName(p Platform) string {
	if n, ok := displayNames[p]; ok {
		return n
	}
	return string(p)
}

// ParsePlatform maps free-form model output ("Housecall Pro", "OpenTable") onto a
// known Platform.
func ParsePlatform(raw string) (Platform, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	for _, p := range Platforms {
		if string(p) == key {
			return p, true
		}
	}
	return "", false
}

// Field names a booking detail that a platform may require.
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
	FieldDate  Field = "date"
	FieldTime  Field = "time"
)

var fieldLabels = map[Field]string{
	FieldName:  "Name",
	FieldEmail: "Email",
	FieldPhone: "Phone Number",
	FieldDate:  "Date",
	FieldTime:  "Time",
}

// Label is the human readable name reported in MissingField.
func (f Field) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

var requiredFields = map[Platform][]Field{
	PlatformCalendly:     {FieldName, FieldEmail, FieldDate, FieldTime},
	PlatformHousecallPro: {FieldName, FieldEmail},
	PlatformOpenTable:    {FieldName, FieldEmail, FieldPhone},
}

// RequiredFields returns the fields that must be present before a booking attempt on p.
func RequiredFields(p Platform) []Field {
	return requiredFields[p]
}

// ChecksAvailability reports whether a booking on p is preceded by an
// availability check. Housecall Pro takes service requests without a slot.
func ChecksAvailability(p Platform) bool {
	return p != PlatformHousecallPro
}
