// Package alumnicsv maps alumni profiles to and from the admin CSV format.
package alumnicsv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/alumni-core/internal/profile"
	"github.com/cuongbtq/alumni-core/internal/rbac"
)

// Header is the fixed column order of the export.
var Header = []string{
	"Old Registration Number", "Registration Number", "Email", "Phone", "Title Prefix",
	"First Name", "Middle Name", "Last Name", "Last Class", "Year of Leaving",
	"Start Class", "Start Year", "Batch Year", "Profession", "Company", "Location",
	"Bio", "LinkedIn URL", "Website URL", "Role", "Is Deceased", "Deceased Year", "Notes",
}

// Record is one CSV row. Field order matches Header.
type Record struct {
	OldRegistrationNumber string      `csv:"Old Registration Number"`
	RegistrationNumber    string      `csv:"Registration Number" validate:"required,registration_id"`
	Email                 string      `csv:"Email" validate:"omitempty,email"`
	Phone                 string      `csv:"Phone"`
	TitlePrefix           string      `csv:"Title Prefix"`
	FirstName             string      `csv:"First Name"`
	MiddleName            string      `csv:"Middle Name"`
	LastName              string      `csv:"Last Name"`
	LastClass             OptionalInt `csv:"Last Class"`
	YearOfLeaving         OptionalInt `csv:"Year of Leaving"`
	StartClass            OptionalInt `csv:"Start Class"`
	StartYear             OptionalInt `csv:"Start Year"`
	BatchYear             OptionalInt `csv:"Batch Year"`
	Profession            string      `csv:"Profession"`
	Company               string      `csv:"Company"`
	Location              string      `csv:"Location"`
	Bio                   string      `csv:"Bio"`
	LinkedInURL           string      `csv:"LinkedIn URL" validate:"omitempty,url"`
	WebsiteURL            string      `csv:"Website URL" validate:"omitempty,url"`
	Role                  string      `csv:"Role" validate:"alumni_role"`
	IsDeceased            Flag        `csv:"Is Deceased"`
	DeceasedYear          OptionalInt `csv:"Deceased Year"`
	Notes                 string      `csv:"Notes"`
}

// OptionalInt is a nullable integer cell, empty when unset.
type OptionalInt struct {
	Value int
	Set   bool
}

func intOf(p *int) OptionalInt {
	if p == nil {
		return OptionalInt{}
	}
	return OptionalInt{Value: *p, Set: true}
}

// Ptr returns nil when unset.
func (o OptionalInt) Ptr() *int {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

func (o OptionalInt) MarshalCSV() (string, error) {
	if !o.Set {
		return "", nil
	}
	return strconv.Itoa(o.Value), nil
}

func (o *OptionalInt) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*o = OptionalInt{}
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not a whole number", s)
	}
	*o = OptionalInt{Value: v, Set: true}
	return nil
}

// Flag is a boolean cell written as TRUE or FALSE.
type Flag bool

func (f Flag) MarshalCSV() (string, error) {
	if f {
		return "TRUE", nil
	}
	return "FALSE", nil
}

func (f *Flag) UnmarshalCSV(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "y":
		*f = true
	case "false", "no", "0", "n", "":
		*f = false
	default:
		return fmt.Errorf("%q is not TRUE or FALSE", s)
	}
	return nil
}

// FromProfile builds the export row for p.
func FromProfile(p *profile.Profile) Record {
	r := Record{
		OldRegistrationNumber: p.OldRegistrationID,
		RegistrationNumber:    p.RegistrationID,
		Email:                 p.Email,
		Phone:                 p.Phone,
		TitlePrefix:           p.TitlePrefix,
		FirstName:             p.FirstName,
		MiddleName:            p.MiddleName,
		LastName:              p.LastName,
		LastClass:             intOf(p.LastClass),
		YearOfLeaving:         intOf(p.YearOfLeaving),
		StartClass:            intOf(p.StartClass),
		StartYear:             intOf(p.StartYear),
		BatchYear:             intOf(p.BatchYear),
		Profession:            p.Profession,
		Company:               p.Company,
		Location:              p.Location,
		Bio:                   p.Bio,
		LinkedInURL:           p.LinkedInURL,
		WebsiteURL:            p.WebsiteURL,
		Role:                  p.Role,
		IsDeceased:            Flag(p.IsDeceased),
		DeceasedYear:          intOf(p.DeceasedYear),
	}
	r.normalize()
	return r
}

// ToProfile converts an imported row into a profile ready to upsert.
func (r Record) ToProfile() *profile.Profile {
	r.normalize()
	p := &profile.Profile{
		OldRegistrationID: r.OldRegistrationNumber,
		RegistrationID:    r.RegistrationNumber,
		Email:             strings.ToLower(r.Email),
		Phone:             r.Phone,
		TitlePrefix:       r.TitlePrefix,
		FirstName:         r.FirstName,
		MiddleName:        r.MiddleName,
		LastName:          r.LastName,
		LastClass:         r.LastClass.Ptr(),
		YearOfLeaving:     r.YearOfLeaving.Ptr(),
		StartClass:        r.StartClass.Ptr(),
		StartYear:         r.StartYear.Ptr(),
		BatchYear:         r.BatchYear.Ptr(),
		Profession:        r.Profession,
		Company:           r.Company,
		Location:          r.Location,
		Bio:               r.Bio,
		LinkedInURL:       r.LinkedInURL,
		WebsiteURL:        r.WebsiteURL,
		Role:              r.Role,
		IsDeceased:        bool(r.IsDeceased),
		DeceasedYear:      r.DeceasedYear.Ptr(),
		ImportSource:      profile.ImportSourceCSV,
	}
	p.FullName = p.DisplayName()
	return p
}

// normalize trims every text cell and fills the default role.
func (r *Record) normalize() {
	for _, s := range []*string{
		&r.OldRegistrationNumber, &r.RegistrationNumber, &r.Email, &r.Phone, &r.TitlePrefix,
		&r.FirstName, &r.MiddleName, &r.LastName, &r.Profession, &r.Company, &r.Location,
		&r.Bio, &r.LinkedInURL, &r.WebsiteURL, &r.Role, &r.Notes,
	} {
		*s = strings.TrimSpace(*s)
	}
	if role, err := rbac.ParseRole(r.Role); err == nil {
		r.Role = string(role)
	} else if r.Role == "" {
		r.Role = string(rbac.DefaultRole)
	}
}
