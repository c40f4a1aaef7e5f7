// Package report exports syllabus projections as XLSX workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

const (
	SubjectsSheet = "Subjects"
	TopicsSheet   = "Topics"
)

var (
	subjectHeader = []any{"Subject", "Type", "Topics", "Done", "Progress %"}
	topicHeader   = []any{"Subject", "Topic", "Status"}
)

// WriteXLSX writes a workbook for view: one row per subject on the Subjects
// sheet, one row per topic on the Topics sheet, and an overall row at the
// bottom of Subjects.
func WriteXLSX(w io.Writer, view syllabus.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SubjectsSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(TopicsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	if err := setRow(f, SubjectsSheet, 1, subjectHeader); err != nil {
		return err
	}
	if err := setRow(f, TopicsSheet, 1, topicHeader); err != nil {
		return err
	}

	subjectRow, topicRow := 2, 2
	for _, s := range view.Subjects {
		kind := "template"
		if s.Custom {
			kind = "custom"
		}
		done := 0
		for _, t := range s.Topics {
			if t.Status == syllabus.StatusDone {
				done++
			}
			if err := setRow(f, TopicsSheet, topicRow, []any{s.Name, t.Title, string(t.Status)}); err != nil {
				return err
			}
			topicRow++
		}
		if err := setRow(f, SubjectsSheet, subjectRow, []any{s.Name, kind, len(s.Topics), done, s.Progress}); err != nil {
			return err
		}
		subjectRow++
	}

	sum := syllabus.Summarize(view.Subjects)
	if err := setRow(f, SubjectsSheet, subjectRow, []any{"Overall " + view.Protocol, "", sum.Topics, sum.Done, sum.Progress}); err != nil {
		return err
	}

	for _, sheet := range []string{SubjectsSheet, TopicsSheet} {
		if err := f.SetCellStyle(sheet, "A1", "E1", bold); err != nil {
			return fmt.Errorf("styling header: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", "B", 32); err != nil {
			return fmt.Errorf("sizing columns: %w", err)
		}
	}
	if err := f.SetCellStyle(SubjectsSheet, cell(1, subjectRow), cell(5, subjectRow), bold); err != nil {
		return fmt.Errorf("styling total: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	if err := f.SetSheetRow(sheet, cell(1, row), &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
