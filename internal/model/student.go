package model

// Student wraps a platform identity user. The record id is the identity user
// id; profile fields live in the identity metadata table. ActivityCount and
// MoneySpent are cached aggregates, eventually consistent and never a source
// of truth (mutation hooks invalidate them).
type Student struct {
	Record

	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	Year          int    `json:"year,omitempty"`
	House         string `json:"house,omitempty"`
	GuardianEmail string `json:"guardian_email,omitempty"`

	ActivityCount int     `json:"activity_count,omitempty"`
	MoneySpent    float64 `json:"money_spent,omitempty"`
}

// NewStudent returns an unsaved student with type defaults applied.
func NewStudent() *Student {
	s := &Student{}
	s.Type = TypeStudent
	s.Status = DefaultStatus(TypeStudent)
	return s
}

func (s *Student) SetEmail(v string) {
	s.mark(FieldEmail, s.Email, v)
	s.Email = v
}

func (s *Student) SetDisplayName(v string) {
	s.mark(FieldDisplayName, s.DisplayName, v)
	s.DisplayName = v
}

func (s *Student) SetYear(v int) {
	s.mark(FieldYear, s.Year, v)
	s.Year = v
}

func (s *Student) SetHouse(v string) {
	s.mark(FieldHouse, s.House, v)
	s.House = v
}

func (s *Student) SetGuardianEmail(v string) {
	s.mark(FieldGuardianEmail, s.GuardianEmail, v)
	s.GuardianEmail = v
}
