// Export fixtures: build CSV and XLSX files in the layout the call centre
// software exports, so tests can run the real ingestion path.
package e2e

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/agridesk/sahayak/internal/models"
)

// SupportedExportExtensions lists the export formats the ingestion reader
// accepts.
var SupportedExportExtensions = []string{".csv", ".xlsx"}

const exportTimeLayout = "2006-01-02 15:04:05"

var exportHeader = []string{
	"StateName", "DistrictName", "BlockName", "Season", "Sector",
	"Category", "Crop", "QueryType", "QueryText", "KccAns",
	"CreatedOn", "year", "month",
}

// WriteExportFile renders the records as an export file of the given
// extension and returns the file bytes.
func WriteExportFile(ext string, recs []*models.Record) ([]byte, error) {
	switch ext {
	case ".csv":
		return exportCSV(recs)
	case ".xlsx":
		return exportXLSX(recs)
	default:
		return nil, fmt.Errorf("unsupported export extension %q", ext)
	}
}

func exportRow(rec *models.Record) []string {
	year, month := "", ""
	if rec.Year != nil {
		year = strconv.Itoa(*rec.Year)
	}
	if rec.Month != nil {
		month = strconv.Itoa(*rec.Month)
	}
	return []string{
		rec.State, rec.District, rec.Block, rec.Season, rec.Sector,
		rec.Category, rec.Crop, rec.QueryType, rec.QueryText, rec.AnswerText,
		rec.CreatedOn.Format(exportTimeLayout), year, month,
	}
}

func exportCSV(recs []*models.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := w.Write(exportRow(rec)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportXLSX(recs []*models.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		fields := exportRow(rec)
		row := make([]interface{}, len(fields))
		for j, v := range fields {
			row[j] = v
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
