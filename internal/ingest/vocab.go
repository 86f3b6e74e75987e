package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"pooledinv/internal/db"
	"pooledinv/internal/digest"
	"pooledinv/internal/logging"
	"pooledinv/internal/vocab"
)

const (
	// VocabType is the source type of the controlled vocabulary.
	VocabType = "vocab"
	// VocabFileName is the only file the vocabulary ingester accepts.
	VocabFileName = "mapping_list.xlsx"
)

// vocabIngester loads mapping_list.xlsx into the vocabulary tables. There is
// no per-row deduplication: whenever the workbook exists it is planned as new.
type vocabIngester struct {
	mode vocab.Mode
	log  *zap.SugaredLogger
}

func newVocabIngester(o Options) *vocabIngester {
	mode := o.Mode
	if mode == "" {
		mode = vocab.ModeReplaceAll
	}
	return &vocabIngester{mode: mode, log: logging.OrNop(o.Log)}
}

func (v *vocabIngester) Type() string { return VocabType }

// Scan returns rawDir/mapping_list.xlsx, failing if it is absent.
func (v *vocabIngester) Scan(rawDir string) ([]string, error) {
	p := filepath.Join(rawDir, VocabFileName)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("vocab mapping list not found: %s\nExpected exactly one file named '%s' in the raw vocab directory: %w",
			p, VocabFileName, fs.ErrNotExist)
	}
	return []string{p}, nil
}

// checkSingle enforces exactly one input named mapping_list.xlsx that exists.
func checkSingle(files []string) (string, error) {
	if len(files) != 1 {
		return "", fmt.Errorf("vocab ingester expects exactly one file: %s. Got %d file(s): %v: %w",
			VocabFileName, len(files), files, ErrInvalidInput)
	}
	p := files[0]
	if !strings.EqualFold(filepath.Ext(p), ".xlsx") {
		return "", fmt.Errorf("vocab ingester expects an .xlsx file. Got: %s: %w", p, ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Base(p), VocabFileName) {
		return "", fmt.Errorf("vocab ingester only accepts '%s'. Got: %s: %w", VocabFileName, filepath.Base(p), ErrInvalidInput)
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("input file does not exist: %s: %w", p, fs.ErrNotExist)
		}
		return "", fmt.Errorf("checking %s: %w", p, err)
	}
	return p, nil
}

// Plan treats the workbook as new whenever it exists and reports the current
// vocabulary row count as "already ingested".
func (v *vocabIngester) Plan(ctx context.Context, d *db.DB, rawDir string, inputs []string) (Plan, error) {
	p, err := checkSingle(inputs)
	if err != nil {
		return Plan{}, err
	}
	counts, err := d.VocabCounts(ctx)
	if err != nil {
		return Plan{}, err
	}
	return Plan{New: []string{p}, AlreadyIngested: counts.Total()}, nil
}

// PrunePreview: vocabulary has no pruning concept.
func (v *vocabIngester) PrunePreview(ctx context.Context, d *db.DB, rawDir string) ([]PruneCandidate, error) {
	return nil, nil
}

// PruneApply is a no-op that reports zero deletions.
func (v *vocabIngester) PruneApply(ctx context.Context, d *db.DB, rawDir string) (PruneSummary, error) {
	return PruneSummary{Note: "not applicable"}, nil
}

// Apply validates the workbook completely, then writes it in one transaction.
func (v *vocabIngester) Apply(ctx context.Context, d *db.DB, rawDir string, files []string) (ApplySummary, error) {
	p, err := checkSingle(files)
	if err != nil {
		return ApplySummary{}, err
	}

	id, err := digest.File(p)
	if err != nil {
		return ApplySummary{}, err
	}

	set, err := vocab.ReadWorkbook(p)
	if err != nil {
		return ApplySummary{}, err
	}
	v.log.Debugw("vocabulary validated", "classes", len(set.Classes), "items", len(set.Items), "rooms", len(set.Rooms))

	if err := d.ApplyVocabulary(ctx, set, v.mode); err != nil {
		return ApplySummary{}, err
	}

	counts, err := d.VocabCounts(ctx)
	if err != nil {
		return ApplySummary{}, err
	}
	written := int64(len(set.Classes) + len(set.Items) + len(set.Rooms))
	return ApplySummary{
		Files:        []FileResult{{Path: p, SourceID: id, RowsInserted: written}},
		RowsInserted: written,
		Mode:         v.mode,
		Vocab:        &counts,
		Message: fmt.Sprintf("mapping_list ingest complete: %d furniture_class, %d items, %d rooms; mode=%s",
			len(set.Classes), len(set.Items), len(set.Rooms), v.mode),
	}, nil
}
