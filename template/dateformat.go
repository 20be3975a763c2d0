package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDate renders t according to a PHP date()-style format string,
// the scheme shared by the now tag and the date and time filters. A
// backslash escapes the following character; unknown characters pass
// through unchanged.
func FormatDate(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c == '\\' && i+1 < len(format) {
			i++
			b.WriteByte(format[i])
			continue
		}
		b.WriteString(formatChar(t, c))
	}
	return b.String()
}

func formatChar(t time.Time, c byte) string {
	switch c {
	case 'a':
		if t.Hour() < 12 {
			return "a.m."
		}
		return "p.m."
	case 'A':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'b':
		return strings.ToLower(t.Format("Jan"))
	case 'c':
		return t.Format("2006-01-02T15:04:05")
	case 'd':
		return fmt.Sprintf("%02d", t.Day())
	case 'D':
		return t.Format("Mon")
	case 'e', 'T':
		zone, _ := t.Zone()
		return zone
	case 'f':
		// 12-hour time, minutes left off when they are zero.
		if t.Minute() == 0 {
			return formatChar(t, 'g')
		}
		return formatChar(t, 'g') + ":" + formatChar(t, 'i')
	case 'F', 'E':
		return t.Format("January")
	case 'g':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return strconv.Itoa(h)
	case 'G':
		return strconv.Itoa(t.Hour())
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return fmt.Sprintf("%02d", h)
	case 'H':
		return fmt.Sprintf("%02d", t.Hour())
	case 'i':
		return fmt.Sprintf("%02d", t.Minute())
	case 'I':
		if t.IsDST() {
			return "1"
		}
		return "0"
	case 'j':
		return strconv.Itoa(t.Day())
	case 'l':
		return t.Format("Monday")
	case 'L':
		if isLeapYear(t.Year()) {
			return "True"
		}
		return "False"
	case 'm':
		return fmt.Sprintf("%02d", int(t.Month()))
	case 'M':
		return t.Format("Jan")
	case 'n':
		return strconv.Itoa(int(t.Month()))
	case 'N':
		return apMonth(t.Month())
	case 'o':
		year, _ := t.ISOWeek()
		return strconv.Itoa(year)
	case 'O':
		return t.Format("-0700")
	case 'P':
		if t.Minute() == 0 {
			if t.Hour() == 0 {
				return "midnight"
			}
			if t.Hour() == 12 {
				return "noon"
			}
		}
		return formatChar(t, 'f') + " " + formatChar(t, 'a')
	case 'r':
		return t.Format("Mon, 02 Jan 2006 15:04:05 -0700")
	case 's':
		return fmt.Sprintf("%02d", t.Second())
	case 'S':
		return ordinalSuffix(t.Day())
	case 't':
		return strconv.Itoa(daysInMonth(t))
	case 'u':
		return fmt.Sprintf("%06d", t.Nanosecond()/1000)
	case 'U':
		return strconv.FormatInt(t.Unix(), 10)
	case 'w':
		return strconv.Itoa(int(t.Weekday()))
	case 'W':
		_, week := t.ISOWeek()
		return strconv.Itoa(week)
	case 'y':
		return fmt.Sprintf("%02d", t.Year()%100)
	case 'Y':
		return strconv.Itoa(t.Year())
	case 'z':
		// Zero-based day of the year, like PHP.
		return strconv.Itoa(t.YearDay() - 1)
	case 'Z':
		_, offset := t.Zone()
		return strconv.Itoa(offset)
	}
	return string(c)
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// ordinalSuffix gives the English suffix for a day of month: st, nd,
// rd or th, with the teens always th.
func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// apMonth abbreviates month names Associated Press style: March through
// July spelled out, the rest shortened with a trailing period.
func apMonth(m time.Month) string {
	switch m {
	case time.January:
		return "Jan."
	case time.February:
		return "Feb."
	case time.August:
		return "Aug."
	case time.September:
		return "Sept."
	case time.October:
		return "Oct."
	case time.November:
		return "Nov."
	case time.December:
		return "Dec."
	}
	return m.String()
}

// timesinceChunks are the units TimeSince reports, largest first. Months
// and years are calendar approximations.
var timesinceChunks = []struct {
	secs int64
	name string
}{
	{60 * 60 * 24 * 365, "year"},
	{60 * 60 * 24 * 30, "month"},
	{60 * 60 * 24 * 7, "week"},
	{60 * 60 * 24, "day"},
	{60 * 60, "hour"},
	{60, "minute"},
}

// TimeSince describes the interval from t to now in the two largest
// applicable units, like "4 days, 6 hours". Intervals under a minute,
// and times in the future, come back as "0 minutes".
func TimeSince(t, now time.Time) string {
	since := int64(now.Sub(t).Seconds())
	if since < 60 {
		return "0 minutes"
	}
	for i, chunk := range timesinceChunks {
		count := since / chunk.secs
		if count == 0 {
			continue
		}
		out := pluralizeUnit(count, chunk.name)
		if i+1 < len(timesinceChunks) {
			rem := (since - count*chunk.secs) / timesinceChunks[i+1].secs
			if rem != 0 {
				out += ", " + pluralizeUnit(rem, timesinceChunks[i+1].name)
			}
		}
		return out
	}
	return "0 minutes"
}

func pluralizeUnit(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
