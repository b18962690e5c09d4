package user

import "time"

// Role is the closed set of account roles. Role checks are exhaustive switches,
// never string predicates against request input.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTranslator Role = "translator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// IsAdmin reports whether the role carries administrative privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Translator type classifiers, matched against a job's paid/rws/unpaid type.
const (
	TranslatorProfessional = "professional"
	TranslatorRWS          = "rwstranslator"
	TranslatorVolunteer    = "volunteer"
)

// Certification levels a translator can hold.
const (
	LevelCertified       = "Certified"
	LevelCertifiedLaw    = "Certified with specialisation in law"
	LevelCertifiedHealth = "Certified with specialisation in health care"
	LevelLayman          = "Layman"
	LevelReadCourses     = "Read Translation courses"
)

// Profile is the domain representation of a customer or translator account,
// including the notification preferences the audience selector filters on.
type Profile struct {
	ID     string
	Email  string
	Name   string
	Mobile *string
	Role   Role
	Active bool

	Gender *string
	City   string

	// Customer-side classification.
	ConsumerType string
	CustomerType string

	// Translator-side classification.
	TranslatorType   string
	TranslatorLevels []string

	NotGetEmergency    bool
	NotGetNotification bool
	NotGetNighttime    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
