package docgen

import (
	"math"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet = "Document"
	// Pictures are scaled to at most this many pixels wide; rows are 20px.
	xlsxImageWidth = 400.0
	xlsxRowHeight  = 20.0
)

func renderXLSX(path, title string, blocks []Block) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return err
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return err
	}
	headingStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4A4A4A"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}

	row := 1
	if err := setRow(f, row, title, titleStyle); err != nil {
		return err
	}
	row += 2

	for _, b := range blocks {
		switch b.Kind {
		case Heading1, Heading2:
			if err := setRow(f, row, b.Text, headingStyle); err != nil {
				return err
			}
			row++
		case Paragraph:
			if err := setRow(f, row, b.Text, 0); err != nil {
				return err
			}
			row += 2
		case Bullets:
			for _, item := range b.Items {
				if err := setRow(f, row, "• "+item, 0); err != nil {
					return err
				}
				row++
			}
			row++
		case Table:
			for i, cells := range b.Rows {
				for c, value := range cells {
					name, err := excelize.CoordinatesToCellName(c+1, row)
					if err != nil {
						return err
					}
					if err := f.SetCellValue(xlsxSheet, name, value); err != nil {
						return err
					}
					if i == 0 {
						if err := f.SetCellStyle(xlsxSheet, name, name, headerStyle); err != nil {
							return err
						}
					}
				}
				row++
			}
			row++
		case Image:
			rows, err := addPicture(f, row, b)
			if err != nil {
				return err
			}
			row += rows + 1
		}
	}

	if err := f.SetColWidth(xlsxSheet, "A", "D", 30); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// addPicture anchors b at column A of row and returns the rows it covers.
func addPicture(f *excelize.File, row int, b Block) (int, error) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return 0, err
	}
	scale := math.Min(1, xlsxImageWidth/float64(b.Width))
	err = f.AddPictureFromBytes(xlsxSheet, cell, &excelize.Picture{
		Extension: b.extension(),
		File:      b.Data,
		Format: &excelize.GraphicOptions{
			AltText:         b.Text,
			LockAspectRatio: true,
			ScaleX:          scale,
			ScaleY:          scale,
		},
	})
	if err != nil {
		return 0, err
	}
	return int(math.Ceil(float64(b.Height) * scale / xlsxRowHeight)), nil
}

func setRow(f *excelize.File, row int, text string, style int) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(xlsxSheet, cell, text); err != nil {
		return err
	}
	if style != 0 {
		return f.SetCellStyle(xlsxSheet, cell, cell, style)
	}
	return nil
}
