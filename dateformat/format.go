// Package dateformat renders dates with date-fns style pattern strings in
// Japanese or English.
package dateformat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// ErrInvalidFormat is returned for patterns containing unsupported letters.
var ErrInvalidFormat = errors.New("invalid date format")

// Placeholder is what Preview shows for a pattern that cannot be formatted.
const Placeholder = "(無効なフォーマット)"

type names struct {
	months      [12]string
	shortMonths [12]string
	days        [7]string
	shortDays   [7]string
	narrowDays  [7]string
	am, pm      string
}

var (
	english = &names{
		months:      [12]string{"January", "February", "March", "April", "May", "June", "July", "August", "September", "October", "November", "December"},
		shortMonths: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		days:        [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		shortDays:   [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		narrowDays:  [7]string{"S", "M", "T", "W", "T", "F", "S"},
		am:          "AM",
		pm:          "PM",
	}
	japanese = &names{
		months:      [12]string{"1月", "2月", "3月", "4月", "5月", "6月", "7月", "8月", "9月", "10月", "11月", "12月"},
		shortMonths: [12]string{"1月", "2月", "3月", "4月", "5月", "6月", "7月", "8月", "9月", "10月", "11月", "12月"},
		days:        [7]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"},
		shortDays:   [7]string{"日", "月", "火", "水", "木", "金", "土"},
		narrowDays:  [7]string{"日", "月", "火", "水", "木", "金", "土"},
		am:          "午前",
		pm:          "午後",
	}

	supported = []language.Tag{language.English, language.Japanese}
	matcher   = language.NewMatcher(supported)
)

// localeNames picks the name tables for locale. An empty locale means
// Japanese.
func localeNames(locale string) *names {
	if locale == "" {
		return japanese
	}
	_, idx := language.MatchStrings(matcher, locale)
	if supported[idx] == language.Japanese {
		return japanese
	}
	return english
}

// Format renders t with a date-fns pattern. Letters are pattern tokens;
// text inside single quotes is copied verbatim and '' is a literal quote.
// Any other character is copied as is.
func Format(t time.Time, format, locale string) (string, error) {
	n := localeNames(locale)
	var b strings.Builder
	rs := []rune(format)

	for i := 0; i < len(rs); {
		r := rs[i]

		if r == '\'' {
			if i+1 < len(rs) && rs[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			i++
			for i < len(rs) {
				if rs[i] == '\'' {
					if i+1 < len(rs) && rs[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteRune(rs[i])
				i++
			}
			continue
		}

		if !isLatin(r) {
			b.WriteRune(r)
			i++
			continue
		}

		j := i
		for j < len(rs) && rs[j] == r {
			j++
		}
		s, err := token(t, r, j-i, n)
		if err != nil {
			return "", fmt.Errorf("%w: %q in %q", err, string(rs[i:j]), format)
		}
		b.WriteString(s)
		i = j
	}
	return b.String(), nil
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func token(t time.Time, letter rune, count int, n *names) (string, error) {
	switch letter {
	case 'y':
		if count == 2 {
			return pad(t.Year()%100, 2), nil
		}
		return pad(t.Year(), count), nil
	case 'M':
		m := int(t.Month())
		switch count {
		case 1, 2:
			return pad(m, count), nil
		case 3:
			return n.shortMonths[m-1], nil
		case 4:
			return n.months[m-1], nil
		case 5:
			return string([]rune(n.shortMonths[m-1])[:1]), nil
		}
	case 'd':
		if count <= 2 {
			return pad(t.Day(), count), nil
		}
	case 'E':
		wd := int(t.Weekday())
		switch {
		case count <= 3:
			return n.shortDays[wd], nil
		case count == 4:
			return n.days[wd], nil
		case count == 5:
			return n.narrowDays[wd], nil
		}
	case 'H':
		if count <= 2 {
			return pad(t.Hour(), count), nil
		}
	case 'h':
		if count <= 2 {
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			return pad(h, count), nil
		}
	case 'm':
		if count <= 2 {
			return pad(t.Minute(), count), nil
		}
	case 's':
		if count <= 2 {
			return pad(t.Second(), count), nil
		}
	case 'a':
		if count <= 5 {
			if t.Hour() < 12 {
				return n.am, nil
			}
			return n.pm, nil
		}
	}
	return "", ErrInvalidFormat
}
