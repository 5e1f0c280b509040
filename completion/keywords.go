package completion

import (
	"regexp"
	"strings"
)

// Keywords are the talking points extracted for a call script.
type Keywords struct {
	PersonalFactors []string `json:"personalFactors"`
	ProductKeywords []string `json:"productKeywords"`
}

// String renders the keywords the way they are stored on a task.
func (k Keywords) String() string {
	var parts []string
	if len(k.PersonalFactors) > 0 {
		parts = append(parts, "Personal Factors: "+strings.Join(k.PersonalFactors, ", "))
	}
	if len(k.ProductKeywords) > 0 {
		parts = append(parts, "Product Factors: "+strings.Join(k.ProductKeywords, ", "))
	}
	return strings.Join(parts, "\n")
}

type section int

const (
	sectionNone section = iota
	sectionPersonal
	sectionProduct
)

var headers = []struct {
	name    string
	section section
}{
	{"personal factors", sectionPersonal},
	{"product factors", sectionProduct},
	{"product keywords", sectionProduct},
}

var bulletMarker = regexp.MustCompile(`^(?:[*\-•+]|\d+[.)]|\(\d+\))\s*`)

// ParseKeywords splits generated text into personal and product factors.
// Lines before the first recognized header are ignored; text without any
// header yields empty lists.
func ParseKeywords(text string) Keywords {
	out := Keywords{PersonalFactors: []string{}, ProductKeywords: []string{}}
	seen := map[section]map[string]bool{
		sectionPersonal: {},
		sectionProduct:  {},
	}
	add := func(sec section, item string) {
		item = strings.Trim(item, "*_ \t")
		if item == "" || sec == sectionNone {
			return
		}
		key := strings.ToLower(item)
		if seen[sec][key] {
			return
		}
		seen[sec][key] = true
		if sec == sectionPersonal {
			out.PersonalFactors = append(out.PersonalFactors, item)
		} else {
			out.ProductKeywords = append(out.ProductKeywords, item)
		}
	}

	current := sectionNone
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if sec, tail, ok := parseHeader(line); ok {
			current = sec
			for _, item := range strings.Split(tail, ",") {
				add(current, item)
			}
			continue
		}
		if current == sectionNone {
			continue
		}
		add(current, bulletMarker.ReplaceAllString(line, ""))
	}
	return out
}

// parseHeader reports whether line is a section header and returns any
// items written after its colon.
func parseHeader(line string) (section, string, bool) {
	stripped := strings.TrimLeft(line, "#* \t")
	lower := strings.ToLower(stripped)
	for _, h := range headers {
		if !strings.HasPrefix(lower, h.name) {
			continue
		}
		rest := strings.TrimLeft(stripped[len(h.name):], "*# \t")
		if rest == "" {
			return h.section, "", true
		}
		if rest[0] != ':' {
			continue
		}
		return h.section, strings.Trim(rest[1:], "*_ \t"), true
	}
	return sectionNone, "", false
}
