package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/example/vocabreview/pkg/models"
)

type memWriter struct {
	items map[string]models.Item
	fail  string
}

func newMemWriter() *memWriter {
	return &memWriter{items: map[string]models.Item{}}
}

func (m *memWriter) Upsert(_ context.Context, item models.Item) (bool, error) {
	if item.ID == m.fail {
		return false, errors.New("disk full")
	}
	_, exists := m.items[item.ID]
	m.items[item.ID] = item
	return !exists, nil
}

func TestImportExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.xlsx")
	f := excelize.NewFile()
	rows := [][]string{
		{"Text", "Pinyin", "Meaning", "Explanation"},
		{"人", "rén", "person", "pictogram of a walking person"},
		{"大", "dà", "big", ""},
		{"", "", "", ""},
		{"小", "xiǎo", "", ""},
		{"人", "rén", "people", ""},
	}
	for i, row := range rows {
		for j, v := range row {
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", name, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	w := newMemWriter()
	cfg := DefaultImportConfig()
	cfg.FilePath = path
	cfg.Level = 2

	res, err := ImportItems(context.Background(), cfg, w)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Row 5")

	person := w.items["人"]
	assert.Equal(t, 2, person.Level)
	assert.Equal(t, "people", person.Meaning)
	assert.Equal(t, "dà", w.items["大"].Pronunciation)
}

func TestImportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.csv")
	require.NoError(t, os.WriteFile(path, []byte("text,pinyin,meaning\n猫,māo,cat\n狗,gǒu,dog\n"), 0644))

	w := newMemWriter()
	w.fail = "狗"
	cfg := DefaultImportConfig()
	cfg.FilePath = path

	res, err := ImportItems(context.Background(), cfg, w)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalProcessed)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "disk full")
	assert.Equal(t, models.CustomLevel, w.items["猫"].Level)
}

func TestImportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hsk1.json")
	data := `[{"char":"你","pinyin":"nǐ","meaning":"you"},{"char":"好","pinyin":"hǎo","meaning":"good","explanation":"woman + child"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	w := newMemWriter()
	res, err := ImportItems(context.Background(), ImportConfig{FilePath: path, Level: 1}, w)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, "woman + child", w.items["好"].Explanation)
}

func TestImportUnsupported(t *testing.T) {
	_, err := ImportItems(context.Background(), ImportConfig{FilePath: "deck.txt"}, newMemWriter())
	assert.Error(t, err)
}

func TestColumnToIndex(t *testing.T) {
	assert.Equal(t, 0, columnToIndex("A"))
	assert.Equal(t, 3, columnToIndex("d"))
	assert.Equal(t, 26, columnToIndex("AA"))
}
