package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

const (
	reportDateLayout = "2006-01-02"
	csvDateLayout    = "02/01/2006"
	fileDateLayout   = "02-01-2006"

	defaultReportDays = 30
)

var signedCSVHeader = []string{"Título", "Cliente", "Vendedor", "Data", "Valor"}

// completedReader - DB interface (reports only)
type completedReader interface {
	ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error)
}

// ReportService - signed (completed) contract reports in a fixed time zone
type ReportService struct {
	db  completedReader
	loc *time.Location
	now func() time.Time
}

func NewReportService(db completedReader, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{db: db, loc: loc, now: time.Now}
}

// ParseRange reads YYYY-MM-DD bounds. Missing bounds default to the 30 days
// ending today. The result covers start 00:00 through the last instant of end.
func (s *ReportService) ParseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	today := startOfDay(s.now().In(s.loc))

	endDay := today
	if strings.TrimSpace(endRaw) != "" {
		d, err := time.ParseInLocation(reportDateLayout, strings.TrimSpace(endRaw), s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidf("end must be a date in YYYY-MM-DD format")
		}
		endDay = d
	}

	startDay := endDay.AddDate(0, 0, -(defaultReportDays - 1))
	if strings.TrimSpace(startRaw) != "" {
		d, err := time.ParseInLocation(reportDateLayout, strings.TrimSpace(startRaw), s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidf("start must be a date in YYYY-MM-DD format")
		}
		startDay = d
	}

	if startDay.After(endDay) {
		return time.Time{}, time.Time{}, invalidf("start must not be after end")
	}
	return startDay, endOfDay(endDay), nil
}

// Signed - contracts completed in [start, end] grouped by local day, newest day first
func (s *ReportService) Signed(ctx context.Context, start, end time.Time) (*model.SignedReport, error) {
	list, err := s.db.ListCompletedContracts(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &model.SignedReport{Start: start, End: end, Days: []model.SignedDay{}}
	index := map[string]int{}
	for _, c := range list {
		key := c.CompletedAt.In(s.loc).Format(reportDateLayout)
		i, ok := index[key]
		if !ok {
			i = len(report.Days)
			index[key] = i
			report.Days = append(report.Days, model.SignedDay{Date: key})
		}
		day := &report.Days[i]
		day.Contracts = append(day.Contracts, c)
		day.Count++
		day.Total += c.Value

		report.Count++
		report.Total += c.Value
	}

	sort.Slice(report.Days, func(i, j int) bool {
		return report.Days[i].Date > report.Days[j].Date
	})
	for i := range report.Days {
		contracts := report.Days[i].Contracts
		sort.SliceStable(contracts, func(a, b int) bool {
			return contracts[a].CompletedAt.After(contracts[b].CompletedAt)
		})
	}
	return report, nil
}

// WriteSignedCSV - header row, then one fully quoted row per contract
func (s *ReportService) WriteSignedCSV(w io.Writer, report *model.SignedReport) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(signedCSVHeader, ",")); err != nil {
		return err
	}
	for _, day := range report.Days {
		for _, c := range day.Contracts {
			row := []string{
				c.Title,
				c.CustomerName,
				c.SalespersonName,
				c.CompletedAt.In(s.loc).Format(csvDateLayout),
				strconv.FormatFloat(c.Value, 'f', -1, 64),
			}
			if _, err := bw.WriteString("\n" + quoteRow(row)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// SignedCSVFilename - contratos_assinados_<dd-MM-yyyy>_a_<dd-MM-yyyy>.csv
func (s *ReportService) SignedCSVFilename(start, end time.Time) string {
	return fmt.Sprintf("contratos_assinados_%s_a_%s.csv",
		start.In(s.loc).Format(fileDateLayout),
		end.In(s.loc).Format(fileDateLayout))
}

func quoteRow(cells []string) string {
	quoted := make([]string, len(cells))
	for i, cell := range cells {
		quoted[i] = `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
