package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	data := Dataset{
		Headers: []string{"Class", "Student", "Logins"},
		Rows: []map[string]string{
			{"Class": "Algebra I", "Student": "Jane Doe", "Logins": "2"},
			{"Class": "Art, Studio", "Student": "Amy Park"},
		},
	}
	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "Class,Student,Logins\nAlgebra I,Jane Doe,2\n\"Art, Studio\",Amy Park,\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	rows := make([]map[string]string, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, map[string]string{"Class": "Art", "Student": "Amy Park"})
	}
	out, err := NewPDFExporter().Render(Dataset{Headers: []string{"Class", "Student"}, Rows: rows}, "Attendance Summary")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	out, err = NewPDFExporter().Render(Dataset{Headers: []string{"Class"}}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = NewPDFExporter().Render(Dataset{}, "x")
	require.Error(t, err)
}
