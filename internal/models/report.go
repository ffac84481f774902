package models

import "strings"

// AuditOrder selects the ordering of the daily audit log.
type AuditOrder string

const (
	AuditOrderDateTimeDesc AuditOrder = "date_time_desc"
	AuditOrderDateTimeAsc  AuditOrder = "date_time_asc"
	AuditOrderStudentName  AuditOrder = "student_name"
	AuditOrderCourse       AuditOrder = "course"
)

// ParseAuditOrder maps user input onto an order; empty input selects the default.
func ParseAuditOrder(raw string) (AuditOrder, bool) {
	switch order := AuditOrder(strings.ToLower(strings.TrimSpace(raw))); order {
	case "":
		return AuditOrderDateTimeDesc, true
	case AuditOrderDateTimeDesc, AuditOrderDateTimeAsc, AuditOrderStudentName, AuditOrderCourse:
		return order, true
	default:
		return "", false
	}
}

// CheckInEntry is one row of the audit log.
type CheckInEntry struct {
	Class   string `json:"class"`
	Student string `json:"student"`
	Date    string `json:"date"`
	Time    string `json:"time"`
}

// StudentSummary counts every check-in recorded for a student.
type StudentSummary struct {
	Student  string `json:"student"`
	CheckIns int    `json:"check_ins"`
}

// ClassSummary groups student totals for one class.
type ClassSummary struct {
	Class    string           `json:"class"`
	Students []StudentSummary `json:"students"`
}
