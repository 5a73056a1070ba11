package x10

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrSyntax    = errors.New("x10: syntax error")
	ErrAmbiguous = errors.New("x10: register holds more than one entry")
)

// Project is the decoded content of one project.
type Project struct {
	Keys   map[int]string
	Values map[int]string
}

// Parse decodes a rendered string. Entries are not delimited from each
// other, so each register may only carry a single entry; anything else is
// reported as ErrAmbiguous.
func Parse(s string) (map[int]Project, error) {
	out := map[int]Project{}
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return nil, fmt.Errorf("%w: project id expected at %d", ErrSyntax, start)
		}
		id, err := strconv.Atoi(s[start:i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		p := Project{Keys: map[int]string{}, Values: map[int]string{}}

		typ := byte(typeKey)
		for i < len(s) && (s[i] == '(' || s[i] == typeKey || s[i] == typeValue) {
			if s[i] != '(' {
				typ = s[i]
				i++
				if i >= len(s) || s[i] != '(' {
					return nil, fmt.Errorf("%w: '(' expected at %d", ErrSyntax, i)
				}
			}
			end := strings.IndexByte(s[i:], ')')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated register at %d", ErrSyntax, i)
			}
			num, value, err := parseEntry(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			if typ == typeKey {
				p.Keys[num] = value
			} else {
				p.Values[num] = value
			}
			i += end + 1
			typ = typeValue
		}
		out[id] = p
	}
	return out, nil
}

func parseEntry(raw string) (int, string, error) {
	switch strings.Count(raw, delimNumValue) {
	case 0:
		return minimum, Unescape(raw), nil
	case 1:
		head, tail, _ := strings.Cut(raw, delimNumValue)
		num, err := strconv.Atoi(head)
		if err != nil {
			return 0, "", ErrAmbiguous
		}
		return num, Unescape(tail), nil
	default:
		return 0, "", ErrAmbiguous
	}
}
