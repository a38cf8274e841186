package services

import (
	"fmt"
	"strings"
	"time"

	"wechat-daily-report/internal/domain"
)

const (
	// DateLayout — формат дат во входных параметрах и метках окон.
	DateLayout = "2006-01-02"
	// RollingBoundaryHour — час, в который заканчиваются сутки ежедневного отчета.
	RollingBoundaryHour = 5
)

// rangeSeparators — допустимые разделители диапазона дат в одном параметре.
var rangeSeparators = []string{":", "~"}

// WindowRequest — входные параметры для вычисления окна.
type WindowRequest struct {
	// Date — одна дата или диапазон вида "YYYY-MM-DD:YYYY-MM-DD".
	Date      string
	StartDate string
	EndDate   string
	// Rolling включает режим "с 05:00 предыдущего дня до 05:00 целевого дня".
	Rolling bool
}

// ResolveWindow вычисляет окно выгрузки по входным параметрам.
// Без дат возвращается скользящее окно, заканчивающееся в 05:00 дня now.
func ResolveWindow(req WindowRequest, now time.Time, loc *time.Location) (domain.TimeWindow, error) {
	if loc == nil {
		loc = time.Local
	}

	date := strings.TrimSpace(req.Date)
	start := strings.TrimSpace(req.StartDate)
	end := strings.TrimSpace(req.EndDate)

	if date != "" && (start != "" || end != "") {
		return invalidRange("date cannot be combined with start/end dates")
	}
	if (start == "") != (end == "") {
		return invalidRange("start and end dates must be given together")
	}

	if date != "" {
		if s, e, ok := splitRange(date); ok {
			start, end = s, e
		} else {
			day, err := parseDate(date, loc)
			if err != nil {
				return domain.TimeWindow{}, err
			}
			if req.Rolling {
				return rollingWindow(day, loc)
			}
			return singleDayWindow(day, loc)
		}
	}

	if start != "" {
		if req.Rolling {
			return invalidRange("rolling mode accepts a single target date only")
		}
		from, err := parseDate(start, loc)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		to, err := parseDate(end, loc)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		return rangeWindow(from, to, loc)
	}

	n := now.In(loc)
	return rollingWindow(time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc), loc)
}

func splitRange(s string) (string, string, bool) {
	for _, sep := range rangeSeparators {
		if from, to, found := strings.Cut(s, sep); found {
			return strings.TrimSpace(from), strings.TrimSpace(to), true
		}
	}
	return "", "", false
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", domain.ErrInvalidDateRange)
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse %q as YYYY-MM-DD", domain.ErrInvalidDateRange, s)
	}
	return t, nil
}

func singleDayWindow(day time.Time, loc *time.Location) (domain.TimeWindow, error) {
	next := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	return domain.NewTimeWindow(day, next, day.Format(DateLayout))
}

func rangeWindow(from, to time.Time, loc *time.Location) (domain.TimeWindow, error) {
	if to.Before(from) {
		return invalidRange(fmt.Sprintf("end date %s is before start date %s", to.Format(DateLayout), from.Format(DateLayout)))
	}
	if to.Equal(from) {
		return singleDayWindow(from, loc)
	}
	end := time.Date(to.Year(), to.Month(), to.Day()+1, 0, 0, 0, 0, loc)
	label := from.Format(DateLayout) + "_to_" + to.Format(DateLayout)
	return domain.NewTimeWindow(from, end, label)
}

// rollingWindow строит окно [target-1 05:00, target 05:00), помеченное датой начала.
func rollingWindow(target time.Time, loc *time.Location) (domain.TimeWindow, error) {
	end := time.Date(target.Year(), target.Month(), target.Day(), RollingBoundaryHour, 0, 0, 0, loc)
	start := time.Date(target.Year(), target.Month(), target.Day()-1, RollingBoundaryHour, 0, 0, 0, loc)
	return domain.NewTimeWindow(start, end, start.Format(DateLayout))
}

func invalidRange(reason string) (domain.TimeWindow, error) {
	return domain.TimeWindow{}, fmt.Errorf("%w: %s", domain.ErrInvalidDateRange, reason)
}

// ReportDayWindow возвращает окно ежедневного отчета за день reportDate:
// с 05:00 этого дня до 05:00 следующего. Пустая дата означает вчерашний день.
func ReportDayWindow(reportDate string, now time.Time, loc *time.Location) (domain.TimeWindow, error) {
	if loc == nil {
		loc = time.Local
	}
	var day time.Time
	if d := strings.TrimSpace(reportDate); d != "" {
		parsed, err := parseDate(d, loc)
		if err != nil {
			return domain.TimeWindow{}, err
		}
		day = parsed
	} else {
		n := now.In(loc)
		day = time.Date(n.Year(), n.Month(), n.Day()-1, 0, 0, 0, 0, loc)
	}
	return rollingWindow(time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc), loc)
}
