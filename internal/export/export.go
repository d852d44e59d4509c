package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/cardlens/benefit-cli/internal/model"
)

// Workbook lays out one record's aggregated benefits as an XLSX file with a
// summary sheet and a benefits sheet.
type Workbook struct {
	file *xlsx.File
}

var benefitHeader = []string{
	"Title", "Category", "Type", "Pipeline", "Value", "Unit",
	"Description", "Conditions", "Limitations", "Merchants",
	"Method", "Confidence", "Level", "Source URL",
}

// Build assembles the workbook from a raw record and its benefit record.
func Build(raw *model.RawRecord, rec *model.BenefitRecord) (*Workbook, error) {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, raw, rec); err != nil {
		return nil, err
	}
	if err := addBenefitsSheet(f, rec.Benefits); err != nil {
		return nil, err
	}
	return &Workbook{file: f}, nil
}

// Save writes the workbook to path.
func (w *Workbook) Save(path string) error {
	if err := w.file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

// File exposes the underlying xlsx file, for tests and streaming writers.
func (w *Workbook) File() *xlsx.File { return w.file }

func addSummarySheet(f *xlsx.File, raw *model.RawRecord, rec *model.BenefitRecord) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	pairs := [][2]string{
		{"Record ID", raw.ID},
		{"Bank", raw.BankName},
		{"Card", raw.CardName},
		{"Seed URL", raw.SeedURL},
		{"Sources", fmt.Sprintf("%d", len(raw.Sources))},
		{"Total Benefits", fmt.Sprintf("%d", rec.Stats.Total)},
		{"High Confidence", fmt.Sprintf("%d", rec.Stats.HighConfidence)},
		{"Medium Confidence", fmt.Sprintf("%d", rec.Stats.MediumConfidence)},
		{"Low Confidence", fmt.Sprintf("%d", rec.Stats.LowConfidence)},
		{"By Pattern", fmt.Sprintf("%d", rec.Stats.ByPattern)},
		{"By Model", fmt.Sprintf("%d", rec.Stats.ByModel)},
		{"By Hybrid", fmt.Sprintf("%d", rec.Stats.ByHybrid)},
		{"Sources Processed", fmt.Sprintf("%d", rec.Stats.SourcesProcessed)},
		{"Sources Relevant", fmt.Sprintf("%d", rec.Stats.SourcesRelevant)},
		{"Extracted At", rec.UpdatedAt.Format(time.RFC3339)},
	}
	for _, p := range pairs {
		row := sheet.AddRow()
		row.AddCell().SetString(p[0])
		row.AddCell().SetString(p[1])
	}
	return nil
}

func addBenefitsSheet(f *xlsx.File, benefits []model.ExtractedBenefit) error {
	sheet, err := f.AddSheet("Benefits")
	if err != nil {
		return eris.Wrap(err, "export: add benefits sheet")
	}

	header := sheet.AddRow()
	for _, h := range benefitHeader {
		header.AddCell().SetString(h)
	}

	for _, b := range benefits {
		row := sheet.AddRow()
		row.AddCell().SetString(b.Title)
		row.AddCell().SetString(b.Category)
		row.AddCell().SetString(b.Type)
		row.AddCell().SetString(b.Pipeline)
		row.AddCell().SetString(b.Value)
		row.AddCell().SetString(b.ValueUnit)
		row.AddCell().SetString(b.Description)
		row.AddCell().SetString(strings.Join(b.Conditions, "; "))
		row.AddCell().SetString(strings.Join(b.Limitations, "; "))
		row.AddCell().SetString(strings.Join(b.Merchants, "; "))
		row.AddCell().SetString(string(b.Method))
		row.AddCell().SetFloatWithFormat(b.Confidence, "0.00")
		row.AddCell().SetString(string(b.ConfidenceLevel))
		row.AddCell().SetString(sourceURL(b))
	}
	return nil
}

// sourceURL prefers the accumulated cross-source list when the benefit was
// merged across sources.
func sourceURL(b model.ExtractedBenefit) string {
	if len(b.SourceURLs) > 0 {
		return strings.Join(b.SourceURLs, "; ")
	}
	return b.SourceURL
}
