package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Layouts used for the Date and Time fields of the attendance document.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// NoClassesSentinel is reported by class listings when the log has no classes.
// It is a display hint and never stored.
const NoClassesSentinel = "No Classes Found"

// CheckInRecord is a single attendance event.
type CheckInRecord struct {
	Date string `json:"Date"`
	Time string `json:"Time"`
}

// NewCheckInRecord stamps a record from the given instant in its own location.
func NewCheckInRecord(ts time.Time) CheckInRecord {
	return CheckInRecord{Date: ts.Format(DateLayout), Time: ts.Format(TimeLayout)}
}

// StudentRecord holds a student's check-ins in the order they happened.
type StudentRecord struct {
	CheckIns []CheckInRecord `json:"Check-in"`
}

// StudentEntry pairs a canonical student name with its record.
type StudentEntry struct {
	Name   string
	Record StudentRecord
}

// ClassLog is the ordered set of students registered under one class.
type ClassLog struct {
	Name     string
	students []*StudentEntry
	index    map[string]int
}

func newClassLog(name string) *ClassLog {
	return &ClassLog{Name: name, index: make(map[string]int)}
}

// Students returns student names in document order.
func (c *ClassLog) Students() []string {
	names := make([]string, len(c.students))
	for i, s := range c.students {
		names[i] = s.Name
	}
	return names
}

// Entries returns the student entries in document order.
func (c *ClassLog) Entries() []*StudentEntry {
	return c.students
}

// Student looks up a student by canonical name.
func (c *ClassLog) Student(name string) (*StudentEntry, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.students[i], true
}

// EnsureStudent returns the named student, registering an empty record when absent.
func (c *ClassLog) EnsureStudent(name string) (*StudentEntry, bool) {
	if s, ok := c.Student(name); ok {
		return s, false
	}
	return c.put(name, StudentRecord{}), true
}

func (c *ClassLog) put(name string, rec StudentRecord) *StudentEntry {
	if rec.CheckIns == nil {
		rec.CheckIns = []CheckInRecord{}
	}
	if i, ok := c.index[name]; ok {
		c.students[i].Record = rec
		return c.students[i]
	}
	entry := &StudentEntry{Name: name, Record: rec}
	c.index[name] = len(c.students)
	c.students = append(c.students, entry)
	return entry
}

func (c *ClassLog) reset() {
	c.students = nil
	c.index = make(map[string]int)
}

// AttendanceLog maps class → student → check-in history, keeping document order.
type AttendanceLog struct {
	classes []*ClassLog
	index   map[string]int
}

// NewAttendanceLog returns an empty log.
func NewAttendanceLog() *AttendanceLog {
	return &AttendanceLog{index: make(map[string]int)}
}

// Len reports the number of classes.
func (l *AttendanceLog) Len() int {
	return len(l.classes)
}

// ClassNames returns class names in document order.
func (l *AttendanceLog) ClassNames() []string {
	names := make([]string, len(l.classes))
	for i, c := range l.classes {
		names[i] = c.Name
	}
	return names
}

// Classes returns the class logs in document order.
func (l *AttendanceLog) Classes() []*ClassLog {
	return l.classes
}

// Class looks up a class by exact name.
func (l *AttendanceLog) Class(name string) (*ClassLog, bool) {
	i, ok := l.index[name]
	if !ok {
		return nil, false
	}
	return l.classes[i], true
}

// EnsureClass returns the named class, appending an empty one when absent.
func (l *AttendanceLog) EnsureClass(name string) (*ClassLog, bool) {
	if c, ok := l.Class(name); ok {
		return c, false
	}
	c := newClassLog(name)
	l.index[name] = len(l.classes)
	l.classes = append(l.classes, c)
	return c, true
}

// RemoveClass drops a class and every history under it.
func (l *AttendanceLog) RemoveClass(name string) bool {
	i, ok := l.index[name]
	if !ok {
		return false
	}
	l.classes = append(l.classes[:i:i], l.classes[i+1:]...)
	delete(l.index, name)
	for j := i; j < len(l.classes); j++ {
		l.index[l.classes[j].Name] = j
	}
	return true
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (l *AttendanceLog) Clone() *AttendanceLog {
	out := NewAttendanceLog()
	for _, c := range l.classes {
		cc, _ := out.EnsureClass(c.Name)
		for _, s := range c.students {
			checkIns := make([]CheckInRecord, len(s.Record.CheckIns))
			copy(checkIns, s.Record.CheckIns)
			cc.put(s.Name, StudentRecord{CheckIns: checkIns})
		}
	}
	return out
}

// MarshalJSON writes classes and students in document order.
func (l *AttendanceLog) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, c := range l.classes {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, c.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, s := range c.students {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(buf, s.Name); err != nil {
				return nil, err
			}
			rec := s.Record
			if rec.CheckIns == nil {
				rec.CheckIns = []CheckInRecord{}
			}
			raw, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("encode %s/%s: %w", c.Name, s.Name, err)
			}
			buf.Write(raw)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the document keeping key order. A repeated key replaces
// the earlier value in place.
func (l *AttendanceLog) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{', "document"); err != nil {
		return err
	}
	fresh := NewAttendanceLog()
	for dec.More() {
		className, err := readKey(dec)
		if err != nil {
			return err
		}
		class, created := fresh.EnsureClass(className)
		if !created {
			class.reset()
		}
		if err := expectDelim(dec, '{', "class "+className); err != nil {
			return err
		}
		for dec.More() {
			studentName, err := readKey(dec)
			if err != nil {
				return err
			}
			var rec StudentRecord
			if err := dec.Decode(&rec); err != nil {
				return fmt.Errorf("decode %s/%s: %w", className, studentName, err)
			}
			class.put(studentName, rec)
		}
		if err := expectDelim(dec, '}', "class "+className); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, '}', "document"); err != nil {
		return err
	}
	*l = *fresh
	return nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(raw)
	buf.WriteByte(':')
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim, what string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%s: expected %q, got %v", what, want, tok)
	}
	return nil
}

// CanonicalStudentName trims and title-cases a student name so spelling
// variants of the same person share one key.
func CanonicalStudentName(raw string) string {
	return TitleCase(strings.TrimSpace(raw))
}

// TitleCase treats every run of letters as a word: its first letter is
// upper-cased and the rest lower-cased. Anything that is not a letter,
// apostrophes and digits included, ends a word, so "o'neil" becomes "O'Neil"
// and "2nd" becomes "2Nd".
func TitleCase(s string) string {
	caser := cases.Title(language.Und)
	var b strings.Builder
	b.Grow(len(s))
	start := -1
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
		} else {
			if start >= 0 {
				b.WriteString(caser.String(s[start:i]))
				start = -1
			}
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	if start >= 0 {
		b.WriteString(caser.String(s[start:]))
	}
	return b.String()
}
