package models

// RosterRecord is one student line of an imported roster, already normalised.
type RosterRecord struct {
	Class    string `json:"class" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Gender   string `json:"gender"`
	Grade    string `json:"grade"`
}

// RosterImportResult summarises what an import changed.
type RosterImportResult struct {
	Records          int `json:"records"`
	ClassesCreated   int `json:"classes_created"`
	StudentsCreated  int `json:"students_created"`
	StudentsExisting int `json:"students_existing"`
}
