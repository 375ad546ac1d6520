package pipeline

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/shpitdev/conference-icp-scout/internal/extract"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/io/local"
)

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads rows written by WriteCSV. Extra columns are ignored; only
// company is required.
func ReadCSV(r io.Reader) ([]Row, error) {
	return local.ReadRecords(r, ExportContract, func(get func(string) string) (Row, bool) {
		row := Row{
			Company:    strings.TrimSpace(get("company")),
			SourceURL:  get("source_url"),
			SourceHint: get("source_hint"),
			Category:   get("category"),
			ICPFit:     get("icp_fit"),
			Confidence: get("confidence"),
			Evidence:   get("evidence"),
			Reason:     get("reason"),
		}
		return row, row.Company != ""
	})
}

// WriteCompaniesCSV writes the raw company list.
func WriteCompaniesCSV(w io.Writer, companies []extract.Company) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CompaniesContract.Names()); err != nil {
		return err
	}
	for _, c := range companies {
		if err := cw.Write([]string{c.Name, c.SourceURL, c.SourceHint}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCompaniesCSV reads a raw company list. Rows with a blank company are
// skipped.
func ReadCompaniesCSV(r io.Reader) ([]extract.Company, error) {
	return local.ReadRecords(r, CompaniesContract, decodeCompany)
}

func decodeCompany(get func(string) string) (extract.Company, bool) {
	c := extract.Company{
		Name:       strings.TrimSpace(get("company")),
		SourceURL:  get("source_url"),
		SourceHint: get("source_hint"),
	}
	return c, c.Name != ""
}

// CompaniesInput loads a raw company CSV from disk.
func CompaniesInput(path string) local.CSVInput[extract.Company] {
	return local.CSVInput[extract.Company]{Path: path, Contract: CompaniesContract, Decode: decodeCompany}
}
