package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_CSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch.csv", "prompt_id,prompt_text,variants,Aspect Ratio,model\n"+
		"cat,a cat on a roof,2,square,\n"+
		",   ,1,,\n"+
		",a dog,,,Firefly 5\n")

	items, err := NewLoader(dir).Load(context.Background(), "batch.csv")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "cat", items[0].ID)
	assert.Equal(t, "a cat on a roof", items[0].Payload)
	assert.Equal(t, 2, items[0].VariantCount)
	assert.Equal(t, "square", items[0].Parameters.Get(domain.ParamAspectRatio))
	assert.Empty(t, items[0].Parameters.Get(domain.ParamModel))

	assert.Regexp(t, `^item_[0-9a-f]{8}$`, items[1].ID)
	assert.Equal(t, 1, items[1].VariantCount)
	assert.Equal(t, "Firefly 5", items[1].Parameters.Get(domain.ParamModel))
}

func TestLoad_CSVWithoutTextColumn(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "id,style\n1,noir\n")

	_, err := NewLoader(dir).Load(context.Background(), "bad.csv")
	assert.ErrorContains(t, err, "prompt text column")
}

func TestLoad_CSVBadVariants(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "text,variants\nhello,many\n")

	_, err := NewLoader(dir).Load(context.Background(), "bad.csv")
	assert.ErrorContains(t, err, "row 2")
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "speech.json", `[
		{"id": "hello", "text": "Hello there", "voice": "Aria", "parameters": {"language": "en-US"}},
		{"prompt": "Second line", "variants": 3},
		{"text": "   "}
	]`)

	items, err := NewLoader(dir).Load(context.Background(), "speech.json")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "hello", items[0].ID)
	assert.Equal(t, "Aria", items[0].Parameters.Get(domain.ParamVoice))
	assert.Equal(t, "en-US", items[0].Parameters.Get(domain.ParamLanguage))
	assert.Equal(t, 3, items[1].VariantCount)
	assert.Equal(t, domain.JobKindSpeech, GuessKind(items))
}

func TestLoad_JSONRejectedBySchema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id": "x"}]`)
	writeFile(t, dir, "b.json", `[{"text": "ok", "variants": 0}]`)
	writeFile(t, dir, "c.json", `{"text": "not an array"}`)

	loader := NewLoader(dir)
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		_, err := loader.Load(context.Background(), name)
		assert.ErrorContains(t, err, "does not match schema", name)
	}
}

func TestLoad_JSONVariantSpellings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.json", `[{"text": "hi", "variantCount": "3"}]`)
	writeFile(t, dir, "bad.json", `[{"text": "hi"}, {"text": "there", "Variants": "many"}]`)
	loader := NewLoader(dir)

	items, err := loader.Load(context.Background(), "ok.json")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].VariantCount)

	_, err = loader.Load(context.Background(), "bad.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 2")
	assert.Contains(t, err.Error(), `"many"`)
}

func TestLoad_XLSX(t *testing.T) {
	dir := t.TempDir()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"id", "prompt", "style"},
		{"p1", "a lighthouse at dusk", "watercolor"},
		{"p2", "", ""},
		{"p3", "a fox in snow", ""},
	}
	for r, row := range rows {
		for c, v := range row {
			cellName, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cellName, v))
		}
	}
	require.NoError(t, f.SaveAs(filepath.Join(dir, "sheet.xlsx")))
	require.NoError(t, f.Close())

	items, err := NewLoader(dir).Load(context.Background(), "sheet.xlsx")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ID)
	assert.Equal(t, "watercolor", items[0].Parameters.Get(domain.ParamStyle))
	assert.Equal(t, "p3", items[1].ID)
	assert.Equal(t, domain.JobKindImage, GuessKind(items))
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Load(context.Background(), "notes.txt")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpen_RejectsPaths(t *testing.T) {
	loader := NewLoader(t.TempDir())
	for _, name := range []string{"../secret.csv", "sub/a.csv", ".hidden.csv", ""} {
		_, err := loader.Open(context.Background(), name)
		assert.ErrorIs(t, err, os.ErrNotExist, name)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "text\none\ntwo\n")
	writeFile(t, dir, "a.json", `[{"text": "hi", "voice": "Aria"}]`)
	writeFile(t, dir, "broken.json", `{`)
	writeFile(t, dir, "readme.md", "ignored")
	writeFile(t, dir, ".hidden.csv", "text\nx\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	files, err := NewLoader(dir).List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, FileInfo{Name: "a.json", Kind: domain.JobKindSpeech, Count: 1}, files[0])
	assert.Equal(t, FileInfo{Name: "b.csv", Kind: domain.JobKindImage, Count: 2}, files[1])
	assert.Equal(t, "broken.json", files[2].Name)
	assert.NotEmpty(t, files[2].Error)
}

func TestList_MissingDir(t *testing.T) {
	files, err := NewLoader(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}
