package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"pooledinv/internal/db"
	"pooledinv/internal/digest"
	"pooledinv/internal/logging"
)

// columnAliases maps accepted spreadsheet headers (lower-cased) to
// observation fields.
var columnAliases = map[string]string{
	"room":             "room_type",
	"room_type":        "room_type",
	"location":         "room_type",
	"item":             "item_description",
	"item_description": "item_description",
	"description":      "item_description",
	"item_name":        "item_name",
	"count":            "count",
	"qty":              "count",
	"quantity":         "count",
	"furniture_class":  "furniture_class",
	"class":            "furniture_class",
	"notes":            "notes",
	"comments":         "notes",
}

// inventoryIngester ingests one observation workbook (or CSV) per source.
// A file's identity is the digest of its bytes, so renamed copies are
// recognised and edited files are new sources.
type inventoryIngester struct {
	sourceType string
	exts       []string
	log        *zap.SugaredLogger
}

func newInventoryIngester(sourceType string, exts []string, o Options) *inventoryIngester {
	return &inventoryIngester{sourceType: sourceType, exts: exts, log: logging.OrNop(o.Log)}
}

func (g *inventoryIngester) Type() string { return g.sourceType }

func (g *inventoryIngester) accepts(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	return slices.Contains(g.exts, strings.ToLower(filepath.Ext(name)))
}

// Scan lists matching files directly inside rawDir, sorted by name.
func (g *inventoryIngester) Scan(rawDir string) ([]string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("scanning raw directory %s: %w", rawDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !g.accepts(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(rawDir, e.Name()))
	}
	return files, nil
}

func (g *inventoryIngester) checkInput(p string) error {
	if !g.accepts(filepath.Base(p)) {
		return fmt.Errorf("%s ingester expects %s files. Got: %s: %w",
			g.sourceType, strings.Join(g.exts, "/"), p, ErrInvalidInput)
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("input file does not exist: %s: %w", p, fs.ErrNotExist)
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", p, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input is a directory: %s: %w", p, ErrInvalidInput)
	}
	return nil
}

// Plan digests each input and keeps those whose digest is not yet a source of
// this type. Identical files within one batch are planned once. Content
// already registered under another source type is rejected.
func (g *inventoryIngester) Plan(ctx context.Context, d *db.DB, rawDir string, inputs []string) (Plan, error) {
	existing, err := d.ExistingSourceIDs(ctx, g.sourceType)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	seen := make(map[string]bool)
	for _, p := range inputs {
		if err := g.checkInput(p); err != nil {
			return Plan{}, err
		}
		id, err := digest.File(p)
		if err != nil {
			return Plan{}, err
		}
		switch {
		case existing[id]:
			plan.AlreadyIngested++
		case seen[id]:
			g.log.Debugw("duplicate content in batch", "file", p, "source_id", id)
		default:
			other, err := d.GetSource(ctx, id)
			if err != nil {
				return Plan{}, err
			}
			if other != nil {
				return Plan{}, fmt.Errorf("%s has the same content as %s, already ingested as type '%s' (source %s): %w",
					p, other.FileName, other.DataSourceType, id, ErrInvalidInput)
			}
			seen[id] = true
			plan.New = append(plan.New, p)
		}
	}
	return plan, nil
}

// PrunePreview reports sources of this type whose content is no longer
// backed by any file in rawDir. A file edited in place leaves its old source
// behind as a candidate, since the source id is the digest of the old bytes.
func (g *inventoryIngester) PrunePreview(ctx context.Context, d *db.DB, rawDir string) ([]PruneCandidate, error) {
	sources, err := d.SourcesByType(ctx, g.sourceType)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, nil
	}

	files, err := g.Scan(rawDir)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(files))
	for _, p := range files {
		id, err := digest.File(p)
		if err != nil {
			return nil, err
		}
		present[id] = true
	}

	var candidates []PruneCandidate
	for _, s := range sources {
		if present[s.SourceID] {
			continue
		}
		name := s.FileName
		if name == "" {
			name = filepath.Base(s.FilePath)
		}
		candidates = append(candidates, PruneCandidate{
			SourceID:        s.SourceID,
			FileName:        name,
			DateImportedUTC: s.DateImportedUTC,
		})
	}
	return candidates, nil
}

// PruneApply deletes every source PrunePreview reports.
func (g *inventoryIngester) PruneApply(ctx context.Context, d *db.DB, rawDir string) (PruneSummary, error) {
	candidates, err := g.PrunePreview(ctx, d, rawDir)
	if err != nil {
		return PruneSummary{}, err
	}
	var summary PruneSummary
	for _, c := range candidates {
		del, err := d.DeleteBySourceID(ctx, c.SourceID)
		if err != nil {
			return summary, err
		}
		summary.Deleted = append(summary.Deleted, del)
		summary.SourcesDeleted += del.SourcesDeleted
		summary.ObservationsDeleted += del.ObservationsDeleted
		g.log.Infow("pruned source", "source_id", c.SourceID, "file", c.FileName,
			"observations", del.ObservationsDeleted)
	}
	return summary, nil
}

// Apply ingests each file as one source. Files already registered are
// skipped, so a repeated apply writes nothing.
func (g *inventoryIngester) Apply(ctx context.Context, d *db.DB, rawDir string, files []string) (ApplySummary, error) {
	var summary ApplySummary

	existing, err := d.ExistingSourceIDs(ctx, g.sourceType)
	if err != nil {
		return summary, err
	}
	classes, err := d.ItemClasses(ctx)
	if err != nil {
		return summary, err
	}

	for _, p := range files {
		if err := g.checkInput(p); err != nil {
			return summary, err
		}
		id, err := digest.File(p)
		if err != nil {
			return summary, err
		}
		if existing[id] {
			summary.Files = append(summary.Files, FileResult{Path: p, SourceID: id, Skipped: "already ingested"})
			continue
		}

		rows, err := readRows(p)
		if err != nil {
			return summary, err
		}
		obs, err := observations(rows, classes)
		if err != nil {
			return summary, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		src := db.Source{
			SourceID:        id,
			DataSourceType:  g.sourceType,
			FileName:        filepath.Base(p),
			FilePath:        abs,
			DateImportedUTC: db.UTCNow(),
			Description:     db.Ptr(g.sourceType + " inventory import"),
		}
		n, err := d.InsertSourceWithObservations(ctx, src, obs)
		if err != nil {
			return summary, err
		}
		existing[id] = true
		summary.Files = append(summary.Files, FileResult{Path: p, SourceID: id, RowsInserted: n})
		summary.RowsInserted += n
		g.log.Infow("ingested file", "type", g.sourceType, "file", src.FileName, "observations", n)
	}

	summary.Message = fmt.Sprintf("%s ingest complete: %d file(s), %d observation(s)",
		g.sourceType, len(summary.Files), summary.RowsInserted)
	return summary, nil
}

// readRows returns the rows of a CSV file or of the first sheet of a workbook.
func readRows(path string) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return readCSV(path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets: %w", path, ErrInvalidInput)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet '%s' of %s: %w", sheet, path, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

// observations maps raw rows to observations. The first row is the header.
// Rows with a blank item description are skipped. When the sheet gives no
// item_name, a description that matches a dictionary item is used as the
// name, and the item's class fills a blank furniture_class.
func observations(rows [][]string, classes map[string]string) ([]db.Observation, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	index := make(map[string]int)
	var found []string
	for i, h := range rows[0] {
		h = strings.ToLower(strings.TrimSpace(h))
		found = append(found, h)
		if f, ok := columnAliases[h]; ok {
			if _, dup := index[f]; !dup {
				index[f] = i
			}
		}
	}
	if _, ok := index["item_description"]; !ok {
		if _, ok := index["item_name"]; !ok {
			return nil, fmt.Errorf("no item column (item, item_description, description or item_name); found %v: %w",
				found, ErrInvalidInput)
		}
	}

	cell := func(row []string, f string) string {
		i, ok := index[f]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	optional := func(v string) *string {
		switch v {
		case "", "nan", "NaN", "None":
			return nil
		}
		return &v
	}

	var obs []db.Observation
	for _, row := range rows[1:] {
		desc := cell(row, "item_description")
		name := strings.ToLower(cell(row, "item_name"))
		if desc == "" {
			desc = name
		}
		if desc == "" {
			continue
		}
		if name == "" {
			if _, ok := classes[strings.ToLower(desc)]; ok {
				name = strings.ToLower(desc)
			}
		}

		o := db.Observation{
			ItemDescription: desc,
			ItemName:        optional(name),
			RoomType:        optional(strings.ToLower(cell(row, "room_type"))),
			FurnitureClass:  optional(strings.ToLower(cell(row, "furniture_class"))),
			Notes:           optional(cell(row, "notes")),
		}
		if c := cell(row, "count"); c != "" {
			if v, err := strconv.ParseFloat(c, 64); err == nil {
				o.Count = &v
			}
		}
		if o.FurnitureClass == nil && name != "" {
			if class, ok := classes[name]; ok {
				o.FurnitureClass = db.Ptr(class)
			}
		}
		obs = append(obs, o)
	}
	return obs, nil
}
