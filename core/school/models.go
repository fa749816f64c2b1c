package school

import (
	"strings"
	"time"

	"github.com/trezcool/ecolage/core"
)

// Student enrollment statuses
const (
	StatusEnrolled  = "enrolled"
	StatusSuspended = "suspended"
	StatusWithdrawn = "withdrawn"
	StatusGraduated = "graduated"
)

var Statuses = []string{StatusEnrolled, StatusSuspended, StatusWithdrawn, StatusGraduated}

// Class is a grade level, eg. "6ème". Tranche amounts are configured per Class.
type Class struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Level     int       `json:"level" db:"level"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ClassSeries is a section of a Class for an academic year, eg. "6ème A".
type ClassSeries struct {
	ID           string    `json:"id" db:"id"`
	ClassID      string    `json:"class_id" db:"class_id"`
	Name         string    `json:"name" db:"name"`
	AcademicYear string    `json:"academic_year" db:"academic_year"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Student struct {
	ID            string    `json:"id" db:"id"`
	Matricule     string    `json:"matricule" db:"matricule"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	SeriesID      string    `json:"series_id" db:"series_id"`
	ClassID       string    `json:"class_id" db:"class_id"` // denormalized from the series
	Status        string    `json:"status" db:"status"`
	GuardianName  string    `json:"guardian_name" db:"guardian_name"`
	GuardianEmail string    `json:"guardian_email" db:"guardian_email"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s Student) IsEnrolled() bool { return s.Status == StatusEnrolled }

type NewClass struct {
	Name  string `json:"name" validate:"required,max=100"`
	Level int    `json:"level" validate:"gte=0"`
}

func (nc *NewClass) Clean() {
	nc.Name = core.CleanString(nc.Name)
}

type NewSeries struct {
	ClassID      string `json:"class_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=100"`
	AcademicYear string `json:"academic_year" validate:"required,max=20"`
}

func (ns *NewSeries) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.AcademicYear = core.CleanString(ns.AcademicYear)
}

type NewStudent struct {
	Matricule     string `json:"matricule" validate:"required,max=50"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	SeriesID      string `json:"series_id" validate:"required"`
	GuardianName  string `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (ns *NewStudent) Clean() {
	ns.Matricule = core.CleanString(ns.Matricule)
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.GuardianName = core.CleanString(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
}

// UpdateStudent holds the editable fields of a Student; empty fields are left unchanged.
type UpdateStudent struct {
	FirstName     string `json:"first_name" validate:"omitempty,max=100"`
	LastName      string `json:"last_name" validate:"omitempty,max=100"`
	SeriesID      string `json:"series_id"`
	Status        string `json:"status" validate:"omitempty,oneof=enrolled suspended withdrawn graduated"`
	GuardianName  string `json:"guardian_name" validate:"omitempty,max=200"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (us *UpdateStudent) Clean() {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.Status = core.CleanString(us.Status, true /* lower */)
	us.GuardianName = core.CleanString(us.GuardianName)
	us.GuardianEmail = core.CleanString(us.GuardianEmail, true /* lower */)
}

type StudentFilter struct {
	Search   string `query:"search"`
	ClassID  string `query:"class_id"`
	SeriesID string `query:"series_id"`
	Status   string `query:"status"`
}

func (sf *StudentFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
	sf.Status = core.CleanString(sf.Status, true /* lower */)
}

// StudentOrderingFields lists the fields students may be ordered by.
var StudentOrderingFields = []string{"matricule", "first_name", "last_name", "status", "created_at"}
