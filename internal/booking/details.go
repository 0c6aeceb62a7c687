package booking

// Details accumulates everything the user has told us about the booking.
// Fields are merged across turns; see Merge.
type Details struct {
	Name             string            `json:"name,omitempty"`
	Email            string            `json:"email,omitempty"`
	Date             string            `json:"date,omitempty"`
	Time             string            `json:"time,omitempty"`
	Platform         Platform          `json:"platform,omitempty"`
	Phone            string            `json:"phone,omitempty"`
	Address          string            `json:"address,omitempty"`
	ServiceCategory  string            `json:"serviceCategory,omitempty"`
	ServiceType      string            `json:"serviceType,omitempty"`
	ServiceDetails   string            `json:"serviceDetails,omitempty"`
	PartySize        int               `json:"partySize,omitempty"`
	Occasion         string            `json:"occasion,omitempty"`
	SpecialRequests  string            `json:"specialRequests,omitempty"`
	CustomFields     map[string]string `json:"customFields,omitempty"`
	SelectedTime     string            `json:"selectedTime,omitempty"`
	IsReadyToConfirm bool              `json:"isReadyToConfirm,omitempty"`
}

// Merge copies every non-empty field of u into d. A field already set on d is
// never cleared by an empty value in u, so merging a sequence of partial updates
// yields the same result as merging their union once.
func (d *Details) Merge(u Details) {
	setString(&d.Name, u.Name)
	setString(&d.Email, u.Email)
	setString(&d.Date, u.Date)
	setString(&d.Time, u.Time)
	if u.Platform != "" {
		d.Platform = u.Platform
	}
	setString(&d.Phone, u.Phone)
	setString(&d.Address, u.Address)
	setString(&d.ServiceCategory, u.ServiceCategory)
	setString(&d.ServiceType, u.ServiceType)
	setString(&d.ServiceDetails, u.ServiceDetails)
	if u.PartySize > 0 {
		d.PartySize = u.PartySize
	}
	setString(&d.Occasion, u.Occasion)
	setString(&d.SpecialRequests, u.SpecialRequests)
	for k, v := range u.CustomFields {
		if v == "" {
			continue
		}
		if d.CustomFields == nil {
			d.CustomFields = make(map[string]string, len(u.CustomFields))
		}
		d.CustomFields[k] = v
	}
	setString(&d.SelectedTime, u.SelectedTime)
	if u.IsReadyToConfirm {
		d.IsReadyToConfirm = true
	}
}

// ChangesSlot reports whether merging u would ask for a different slot than
// the one d describes.
func (d Details) ChangesSlot(u Details) bool {
	return differs(d.Date, u.Date) || differs(d.Time, u.Time) ||
		(u.PartySize > 0 && u.PartySize != d.PartySize)
}

func differs(cur, next string) bool {
	return next != "" && next != cur
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Value returns the detail stored under f.
func (d Details) Value(f Field) string {
	switch f {
	case FieldName:
		return d.Name
	case FieldEmail:
		return d.Email
	case FieldPhone:
		return d.Phone
	case FieldDate:
		return d.Date
	case FieldTime:
		return d.Time
	}
	return ""
}

// Missing reports the platform's required fields that are still empty.
func (d Details) Missing() []MissingField {
	var missing []MissingField
	for _, f := range RequiredFields(d.Platform) {
		if d.Value(f) == "" {
			missing = append(missing, MissingField{Label: f.Label(), Required: true})
		}
	}
	return missing
}
