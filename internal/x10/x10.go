// Package x10 implements the extensible "X10" encoding carried in the utme
// parameter: per project, two numbered registers (keys and values) rendered
// into a compact delimiter based string.
package x10

import (
	"sort"
	"strconv"
	"strings"
)

// Reserved project ids.
const (
	EventProjectID          = 5
	CustomVarNameProjectID  = 8
	CustomVarValueProjectID = 9
	CustomVarScopeProjectID = 11
	SitespeedProjectID      = 14
)

// Well known nums inside a project.
const (
	ObjectKeyNum  = 1
	TypeKeyNum    = 2
	LabelKeyNum   = 3
	ValueValueNum = 1
)

const (
	typeKey   = 'k'
	typeValue = 'v'

	delimBegin    = "("
	delimEnd      = ")"
	delimSet      = ""
	delimNumValue = "!"

	minimum = 1
)

// register order matters: keys render before values.
var registerTypes = [...]byte{typeKey, typeValue}

type register map[int]string

type project struct {
	registers map[byte]register
}

// Encoder holds X10 data for any number of projects. The zero value is not
// usable, use New.
type Encoder struct {
	projects map[int]*project
}

func New() *Encoder {
	return &Encoder{projects: map[int]*project{}}
}

// HasProject reports whether any register was ever set for projectID.
func (e *Encoder) HasProject(projectID int) bool {
	_, ok := e.projects[projectID]
	return ok
}

func (e *Encoder) SetKey(projectID, num int, value string) {
	e.set(projectID, typeKey, num, value)
}

func (e *Encoder) GetKey(projectID, num int) (string, bool) {
	return e.get(projectID, typeKey, num)
}

// ClearKey drops every key of projectID.
func (e *Encoder) ClearKey(projectID int) {
	e.clear(projectID, typeKey)
}

func (e *Encoder) SetValue(projectID, num int, value string) {
	e.set(projectID, typeValue, num, value)
}

func (e *Encoder) GetValue(projectID, num int) (string, bool) {
	return e.get(projectID, typeValue, num)
}

// ClearValue drops every value of projectID.
func (e *Encoder) ClearValue(projectID int) {
	e.clear(projectID, typeValue)
}

func (e *Encoder) set(projectID int, typ byte, num int, value string) {
	p, ok := e.projects[projectID]
	if !ok {
		p = &project{registers: map[byte]register{}}
		e.projects[projectID] = p
	}
	r, ok := p.registers[typ]
	if !ok {
		r = register{}
		p.registers[typ] = r
	}
	r[num] = value
}

func (e *Encoder) get(projectID int, typ byte, num int) (string, bool) {
	p, ok := e.projects[projectID]
	if !ok {
		return "", false
	}
	v, ok := p.registers[typ][num]
	return v, ok
}

func (e *Encoder) clear(projectID int, typ byte) {
	if p, ok := e.projects[projectID]; ok {
		delete(p.registers, typ)
	}
}

// RenderURLString renders all projects in ascending id order.
func (e *Encoder) RenderURLString() string {
	ids := make([]int, 0, len(e.projects))
	for id := range e.projects {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var sb strings.Builder
	for _, id := range ids {
		body := renderProject(e.projects[id])
		if body == "" {
			continue
		}
		sb.WriteString(strconv.Itoa(id))
		sb.WriteString(body)
	}
	return sb.String()
}

// renderProject emits the type marker only for a register that follows an
// omitted one.
func renderProject(p *project) string {
	var sb strings.Builder
	needTypeQualifier := false
	for _, typ := range registerTypes {
		data, ok := renderRegister(p.registers[typ])
		if !ok {
			needTypeQualifier = true
			continue
		}
		if needTypeQualifier {
			sb.WriteByte(typ)
		}
		sb.WriteString(data)
		needTypeQualifier = false
	}
	return sb.String()
}

// renderRegister returns false when r holds nothing worth rendering.
func renderRegister(r register) (string, bool) {
	nums := make([]int, 0, len(r))
	for num, v := range r {
		if v != "" {
			nums = append(nums, num)
		}
	}
	if len(nums) == 0 {
		return "", false
	}
	sort.Ints(nums)

	parts := make([]string, 0, len(nums))
	lastI := 0
	for _, i := range nums {
		var s string
		if i != minimum && i-1 != lastI {
			s = strconv.Itoa(i) + delimNumValue
		}
		parts = append(parts, s+Escape(r[i]))
		lastI = i
	}
	return delimBegin + strings.Join(parts, delimSet) + delimEnd, true
}

// Escape removes ambiguity for the characters the format reserves. The
// escape character itself is handled in the same single pass.
func Escape(value string) string {
	if !strings.ContainsAny(value, "')*!") {
		return value
	}
	var sb strings.Builder
	sb.Grow(len(value) + 4)
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\'':
			sb.WriteString("'0")
		case ')':
			sb.WriteString("'1")
		case '*':
			sb.WriteString("'2")
		case '!':
			sb.WriteString("'3")
		default:
			sb.WriteByte(value[i])
		}
	}
	return sb.String()
}

// Unescape reverses Escape.
func Unescape(value string) string {
	if !strings.Contains(value, "'") {
		return value
	}
	var sb strings.Builder
	sb.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] == '\'' && i+1 < len(value) {
			switch value[i+1] {
			case '0':
				sb.WriteByte('\'')
			case '1':
				sb.WriteByte(')')
			case '2':
				sb.WriteByte('*')
			case '3':
				sb.WriteByte('!')
			default:
				sb.WriteByte(value[i])
				continue
			}
			i++
			continue
		}
		sb.WriteByte(value[i])
	}
	return sb.String()
}
