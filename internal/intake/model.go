package intake

import (
	"strings"
	"time"
)

type VisitType string

const (
	VisitFirst   VisitType = "first-visit"
	VisitRepeat  VisitType = "repeat-visit"
	VisitReissue VisitType = "card-reissue"
)

type Department string

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// PatientInfo is captured once on the first screen and replaced, never edited, on resubmission.
type PatientInfo struct {
	VisitType       VisitType  `json:"visitType"`
	Department      Department `json:"department"`
	OtherDepartment string     `json:"otherDepartment,omitempty"`
	LastName        string     `json:"lastName"`
	FirstName       string     `json:"firstName"`
	Gender          Gender     `json:"gender"`
	BirthYear       int        `json:"birthYear"`
	BirthMonth      int        `json:"birthMonth"`
	BirthDay        int        `json:"birthDay"`
}

// DepartmentName is the department shown to staff: the free-text override for "other".
func (p PatientInfo) DepartmentName() string {
	if p.Department == DepartmentOther {
		if other := strings.TrimSpace(p.OtherDepartment); other != "" {
			return other
		}
	}
	return p.Department.Label()
}

func (p PatientInfo) FullName() string {
	return strings.TrimSpace(p.LastName) + " " + strings.TrimSpace(p.FirstName)
}

func (p PatientInfo) BirthDate() time.Time {
	return time.Date(p.BirthYear, time.Month(p.BirthMonth), p.BirthDay, 0, 0, 0, 0, time.Local)
}

// AgeAt returns the completed years of age on now's calendar date.
func (p PatientInfo) AgeAt(now time.Time) int {
	age := now.Year() - p.BirthYear
	if int(now.Month()) < p.BirthMonth || (int(now.Month()) == p.BirthMonth && now.Day() < p.BirthDay) {
		age--
	}
	return age
}

type InterviewAnswer struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp"`
}

type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "emergency"
	UrgencyUrgent    UrgencyLevel = "urgent"
	UrgencyNormal    UrgencyLevel = "normal"
)

// Severity orders urgency tiers; higher is more severe.
func (l UrgencyLevel) Severity() int {
	switch l {
	case UrgencyEmergency:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

type RecommendedDepartment struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type UrgencyAssessment struct {
	Level                  UrgencyLevel            `json:"level"`
	Reason                 string                  `json:"reason"`
	Action                 string                  `json:"action"`
	RecommendedDepartments []RecommendedDepartment `json:"recommendedDepartments"`
}

type AnalysisResult struct {
	Summary           string            `json:"summary"`
	UrgencyAssessment UrgencyAssessment `json:"urgencyAssessment"`
	Diagnosis         string            `json:"diagnosis,omitempty"`
}

type Screen string

const (
	ScreenPatientInfo  Screen = "patientInfo"
	ScreenInterview    Screen = "interview"
	ScreenConfirmation Screen = "confirmation"
	ScreenCompletion   Screen = "completion"
	ScreenDoctor       Screen = "doctor"
)

// Handoff is what clinical staff receive once an intake is completed.
type Handoff struct {
	SessionID   string         `json:"sessionId"`
	Patient     PatientInfo    `json:"patient"`
	Answers     Answers        `json:"answers"`
	Analysis    AnalysisResult `json:"analysis"`
	CompletedAt time.Time      `json:"completedAt"`
}
