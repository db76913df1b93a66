package types

import (
	"encoding/json"
	"strings"
)

// Enumerations offered to the language model. Values outside these sets fail
// validation and count as an unusable response.
var (
	TripTypes      = []string{"wine_tour", "private_tour", "corporate", "wedding", "celebration", "other"}
	StopTypes      = []string{"winery", "restaurant", "hotel", "activity", "transport", "other"}
	InclusionTypes = []string{"transportation", "tasting_fees", "meal", "lodging", "gratuity", "guide", "other"}
	PricingTypes   = []string{"per_person", "flat", "per_hour", "included"}
)

// Confidence thresholds for operator review:
//
//	< 0.5: warn, most fields probably need manual entry
//	0.5-0.8: review every pre-filled field
//	>= 0.8: spot-check
const (
	ExtractionConfidenceLow  = 0.5
	ExtractionConfidenceHigh = 0.8
)

// SourceFileState is the per-file parse outcome.
type SourceFileState string

const (
	SourceFileParsed SourceFileState = "parsed"
	SourceFileError  SourceFileState = "error"
)

// SmartImportResult is the transient output of one smart-import request. It is
// shown to an operator and never persisted as-is.
type SmartImportResult struct {
	ImportID        string             `json:"import_id"`
	Confidence      float64            `json:"confidence" validate:"gte=0,lte=1"`
	Proposal        ProposalDraft      `json:"proposal"`
	Days            []ImportDay        `json:"days" validate:"dive"`
	Guests          []ImportGuest      `json:"guests" validate:"dive"`
	Inclusions      []ImportInclusion  `json:"inclusions" validate:"dive"`
	ExtractionNotes string             `json:"extraction_notes"`
	SourceFiles     []SourceFileStatus `json:"source_files"`
	Attempts        int                `json:"attempts"`
}

// ProposalDraft is the partial proposal extracted from documents. Keys the
// model returns that are not modelled here are kept in Extra.
type ProposalDraft struct {
	CustomerName  *string  `json:"customer_name,omitempty"`
	CustomerEmail *string  `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone *string  `json:"customer_phone,omitempty"`
	TripTitle     *string  `json:"trip_title,omitempty"`
	TripType      *string  `json:"trip_type,omitempty" validate:"omitempty,oneof=wine_tour private_tour corporate wedding celebration other"`
	StartDate     *string  `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string  `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PartySize     *int     `json:"party_size,omitempty" validate:"omitempty,gte=1"`
	Total         *float64 `json:"total,omitempty" validate:"omitempty,gte=0"`
	PickupAddress *string  `json:"pickup_address,omitempty"`
	Notes         *string  `json:"notes,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty" validate:"-"`
}

var proposalDraftKeys = []string{
	"customer_name", "customer_email", "customer_phone", "trip_title", "trip_type",
	"start_date", "end_date", "party_size", "total", "pickup_address", "notes", "extra",
}

// UnmarshalJSON decodes the known fields and keeps everything else in Extra.
func (d *ProposalDraft) UnmarshalJSON(data []byte) error {
	type plain ProposalDraft
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range proposalDraftKeys {
		delete(raw, k)
	}
	p.Extra = nil
	if len(raw) > 0 {
		p.Extra = raw
	}

	*d = ProposalDraft(p)
	return nil
}

type ImportDay struct {
	Date  *string      `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Title *string      `json:"title,omitempty"`
	Stops []ImportStop `json:"stops" validate:"dive"`
}

type ImportStop struct {
	// Empty for stops that are not at a venue, such as a transfer.
	VenueName string  `json:"venue_name"`
	StopType  *string `json:"stop_type,omitempty" validate:"omitempty,oneof=winery restaurant hotel activity transport other"`
	StartTime *string `json:"start_time,omitempty" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"end_time,omitempty" validate:"omitempty,datetime=15:04"`
	Notes     *string `json:"notes,omitempty"`

	// Set by venue matching after extraction.
	MatchedVenueID   *int64   `json:"matched_venue_id,omitempty" validate:"-"`
	MatchedVenueName *string  `json:"matched_venue_name,omitempty" validate:"-"`
	MatchConfidence  *float64 `json:"match_confidence,omitempty" validate:"-"`
	MatchType        *string  `json:"match_type,omitempty" validate:"-"`
}

type ImportGuest struct {
	Name                string  `json:"name"`
	Email               *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone               *string `json:"phone,omitempty"`
	DietaryRestrictions *string `json:"dietary_restrictions,omitempty"`
}

type ImportInclusion struct {
	Description   string   `json:"description"`
	InclusionType *string  `json:"inclusion_type,omitempty" validate:"omitempty,oneof=transportation tasting_fees meal lodging gratuity guide other"`
	PricingType   *string  `json:"pricing_type,omitempty" validate:"omitempty,oneof=per_person flat per_hour included"`
	Amount        *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Quantity      *float64 `json:"quantity,omitempty" validate:"omitempty,gte=0"`
}

// DropBlankFields turns values the model uses as placeholders (empty strings,
// a zero party size) into absent fields so they do not fail validation.
func (r *SmartImportResult) DropBlankFields() {
	d := &r.Proposal
	for _, f := range []**string{
		&d.CustomerName, &d.CustomerEmail, &d.CustomerPhone, &d.TripTitle, &d.TripType,
		&d.StartDate, &d.EndDate, &d.PickupAddress, &d.Notes,
	} {
		*f = blankToNil(*f)
	}
	if d.PartySize != nil && *d.PartySize <= 0 {
		d.PartySize = nil
	}

	for i := range r.Days {
		day := &r.Days[i]
		day.Date = blankToNil(day.Date)
		day.Title = blankToNil(day.Title)
		for j := range day.Stops {
			st := &day.Stops[j]
			st.VenueName = strings.TrimSpace(st.VenueName)
			st.StopType = blankToNil(st.StopType)
			st.StartTime = blankToNil(st.StartTime)
			st.EndTime = blankToNil(st.EndTime)
			st.Notes = blankToNil(st.Notes)
		}
	}
	for i := range r.Guests {
		g := &r.Guests[i]
		g.Name = strings.TrimSpace(g.Name)
		g.Email = blankToNil(g.Email)
		g.Phone = blankToNil(g.Phone)
		g.DietaryRestrictions = blankToNil(g.DietaryRestrictions)
	}
	for i := range r.Inclusions {
		in := &r.Inclusions[i]
		in.Description = strings.TrimSpace(in.Description)
		in.InclusionType = blankToNil(in.InclusionType)
		in.PricingType = blankToNil(in.PricingType)
	}
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// SourceFileStatus reports what happened to one uploaded file.
type SourceFileStatus struct {
	FileName   string          `json:"file_name"`
	MIMEType   string          `json:"mime_type"`
	Status     SourceFileState `json:"status"`
	Error      string          `json:"error,omitempty"`
	TextLength int             `json:"text_length,omitempty"`
	ImageCount int             `json:"image_count,omitempty"`
}
