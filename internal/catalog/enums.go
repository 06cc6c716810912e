package catalog

import (
	"fmt"
	"strconv"
)

// Role of a platform user
type Role int

const (
	RoleAdmin      Role = 1
	RoleStudent    Role = 2
	RoleInstructor Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleStudent:
		return "Student"
	case RoleInstructor:
		return "Instructor"
	default:
		return "Unknown"
	}
}

// ParseRole accepts the numeric code or the label
func ParseRole(s string) (Role, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		r := Role(n)
		return r, r.String() != "Unknown"
	}
	for _, r := range []Role{RoleAdmin, RoleStudent, RoleInstructor} {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

type CourseLevel int

const (
	LevelBeginner CourseLevel = iota
	LevelIntermediate
	LevelAdvanced
)

var courseLevels = []string{"Beginner", "Intermediate", "Advanced"}

func (l CourseLevel) String() string {
	return label(courseLevels, int(l))
}

// CourseLevels lists the labels accepted by the course level filter
func CourseLevels() []string {
	return append([]string(nil), courseLevels...)
}

type CourseStatus int

const (
	CourseDraft CourseStatus = iota
	CoursePublished
	CourseArchived
	CourseActive
	CourseInactive
)

var courseStatuses = []string{"Draft", "Published", "Archived", "Active", "Inactive"}

func (s CourseStatus) String() string {
	return label(courseStatuses, int(s))
}

type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota
	PaymentCompleted
	PaymentFailed
	PaymentRefunded
)

var paymentStatuses = []string{"Pending", "Completed", "Failed", "Refunded"}

func (s PaymentStatus) String() string {
	return label(paymentStatuses, int(s))
}

type InstructorConfirmationStatus int

const (
	ConfirmationPending InstructorConfirmationStatus = iota
	ConfirmationConfirmed
	ConfirmationRejected
)

var confirmationStatuses = []string{"Pending", "Confirmed", "Rejected"}

func (s InstructorConfirmationStatus) String() string {
	return label(confirmationStatuses, int(s))
}

// Labels holds the display labels of every enum, for the frontend's select
// inputs
type Labels struct {
	Roles                []string `json:"roles"`
	CourseLevels         []string `json:"courseLevels"`
	CourseStatuses       []string `json:"courseStatuses"`
	PaymentStatuses      []string `json:"paymentStatuses"`
	ConfirmationStatuses []string `json:"confirmationStatuses"`
}

// EnumLabels lists each enum's labels in code order
func EnumLabels() Labels {
	return Labels{
		Roles:                labelsOf(RoleAdmin, RoleStudent, RoleInstructor),
		CourseLevels:         CourseLevels(),
		CourseStatuses:       labelsOf(CourseDraft, CoursePublished, CourseArchived, CourseActive, CourseInactive),
		PaymentStatuses:      labelsOf(PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded),
		ConfirmationStatuses: labelsOf(ConfirmationPending, ConfirmationConfirmed, ConfirmationRejected),
	}
}

func labelsOf[E fmt.Stringer](values ...E) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func label(labels []string, i int) string {
	if i < 0 || i >= len(labels) {
		return "Unknown"
	}
	return labels[i]
}
