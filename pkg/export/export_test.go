package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterWritesBOM(t *testing.T) {
	out, err := NewCSVExporter(true).Render(Dataset{
		Headers: []string{"Name", "City"},
		Rows:    []map[string]string{{"Name": "Zoë", "City": "Lahore"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}))
	assert.Equal(t, "Name,City\nZoë,Lahore\n", string(out[3:]))
}

func TestCSVExporterWithoutBOM(t *testing.T) {
	out, err := NewCSVExporter(false).Render(Dataset{Headers: []string{"A"}})
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter(true).Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	rows := make([]map[string]string, 0, 80)
	for i := 0; i < 80; i++ {
		rows = append(rows, map[string]string{"Student": "A very long student name that overflows", "Status": "present"})
	}
	out, err := NewPDFExporter().Render(Dataset{Headers: []string{"Student", "Status"}, Rows: rows}, "Attendance")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 95))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 16))
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	var buf bytes.Buffer
	err := NewCSVExporter(false).Write(&buf, Dataset{
		Headers: []string{"Name", "Amount", "Phone"},
		Rows: []map[string]string{
			{"Name": "=HYPERLINK(\"x\")", "Amount": "-12.50", "Phone": "+6281234"},
			{"Name": "@cmd", "Amount": "-", "Phone": "+x"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Name,Amount,Phone\n\"'=HYPERLINK(\"\"x\"\")\",-12.50,+6281234\n'@cmd,'-,'+x\n", buf.String())
}
