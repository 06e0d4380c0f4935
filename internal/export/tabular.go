package export

import (
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/vcard-normalizer/internal/model"
)

// tableColumns defines the ordered CSV/XLSX output columns.
var tableColumns = []string{
	"Display Name",
	"Given Name",
	"Family Name",
	"Organization",
	"Title",
	"Email 1",
	"Email 2",
	"Phone 1",
	"Phone 1 Type",
	"Phone 2",
	"Phone 2 Type",
	"Street",
	"City",
	"Region",
	"Postal Code",
	"Country",
	"Birthday",
	"Kind",
	"Categories",
	"Sources",
	"UID",
}

// buildRow maps a contact onto tableColumns.
func buildRow(c *model.Contact) ([]string, error) {
	var addr model.Address
	if len(c.Addresses) > 0 {
		addr = c.Addresses[0]
	}
	phone := func(i int) model.Phone {
		if i < len(c.Phones) {
			return c.Phones[i]
		}
		return model.Phone{}
	}
	row := []string{
		c.FN,
		c.Name.Given,
		c.Name.Family,
		c.Org,
		c.Title,
		nth(c.Emails, 0),
		nth(c.Emails, 1),
		phone(0).Number,
		phone(0).Type,
		phone(1).Number,
		phone(1).Type,
		addr.Street,
		addr.Locality,
		addr.Region,
		addr.PostalCode,
		addr.Country,
		c.Birthday.ISO(),
		string(c.Kind),
		strings.Join(c.Categories, "; "),
		strings.Join(c.Sources, "; "),
		c.UID,
	}
	for i, v := range row {
		if !utf8.ValidString(v) {
			return nil, eris.Errorf("export: column %q holds invalid UTF-8", tableColumns[i])
		}
	}
	return row, nil
}

func nth(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// WriteCSV writes one row per contact with a header row.
func WriteCSV(path string, contacts []*model.Contact) (Result, error) {
	res := Result{Path: path}
	err := writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(tableColumns); err != nil {
			return eris.Wrap(err, "export: write CSV header")
		}
		for _, c := range contacts {
			row, err := buildRow(c)
			if err != nil {
				res.Skipped++
				zap.L().Warn("export: skipped contact", zap.String("contact", c.Label()), zap.Error(err))
				continue
			}
			if err := cw.Write(row); err != nil {
				return eris.Wrap(err, "export: write CSV row")
			}
			res.Written++
		}
		cw.Flush()
		return eris.Wrap(cw.Error(), "export: flush CSV")
	})
	if err != nil {
		return Result{Path: path}, err
	}
	logResult("csv", res)
	return res, nil
}

// WriteXLSX writes a single "Contacts" sheet with a header row.
func WriteXLSX(path string, contacts []*model.Contact) (Result, error) {
	res := Result{Path: path}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Contacts")
	if err != nil {
		return res, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, tableColumns)
	for _, c := range contacts {
		row, err := buildRow(c)
		if err != nil {
			res.Skipped++
			zap.L().Warn("export: skipped contact", zap.String("contact", c.Label()), zap.Error(err))
			continue
		}
		addRow(sheet, row)
		res.Written++
	}

	if err := writeAtomic(path, func(w io.Writer) error {
		return eris.Wrap(f.Write(w), "export: write xlsx")
	}); err != nil {
		return Result{Path: path}, err
	}
	logResult("xlsx", res)
	return res, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
