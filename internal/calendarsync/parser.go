package calendarsync

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"lodging/internal/daterange"
)

var dateToken = regexp.MustCompile(`\d{8}`)

// Parse scans an iCal document for VEVENT blocks. For each block it takes
// the UID, the first 8-digit date after DTSTART and the first 8-digit date
// after DTEND, plus SUMMARY if present. Blocks missing UID, DTSTART or
// DTEND, or carrying an impossible date, are counted in skipped instead of
// failing the whole feed. A document that cannot be scanned to the end
// returns ErrParse so a truncated read never replaces a source's blocks.
func Parse(data []byte) (events []Event, skipped int, err error) {
	var (
		inEvent                  bool
		uid, start, end, summary string
		haveStart, haveEnd       bool
	)

	doc := unfold(data)
	scanner := bufio.NewScanner(bytes.NewReader(doc))
	// Any single line fits; the fetcher already caps the document size.
	scanner.Buffer(make([]byte, 0, 64*1024), max(len(doc)+1, 64*1024))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		name, rest := splitProperty(line)

		switch {
		case name == "BEGIN" && isEventMarker(rest):
			if inEvent {
				// Previous block never closed.
				skipped++
			}
			inEvent = true
			uid, start, end, summary = "", "", "", ""
			haveStart, haveEnd = false, false

		case name == "END" && isEventMarker(rest):
			if !inEvent {
				continue
			}
			inEvent = false
			ev, ok := buildEvent(uid, start, end, summary)
			if !ok {
				skipped++
				continue
			}
			events = append(events, ev)

		case !inEvent:
			continue

		case name == "UID" && uid == "":
			uid = strings.TrimSpace(propertyValue(rest))

		case name == "DTSTART" && !haveStart:
			haveStart = true
			start = dateToken.FindString(rest)

		case name == "DTEND" && !haveEnd:
			haveEnd = true
			end = dateToken.FindString(rest)

		case name == "SUMMARY" && summary == "":
			summary = unescapeText(propertyValue(rest))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if inEvent {
		skipped++
	}
	return events, skipped, nil
}

func buildEvent(uid, start, end, summary string) (Event, bool) {
	if uid == "" || start == "" || end == "" {
		return Event{}, false
	}
	s, err := daterange.ParseCompact(start)
	if err != nil {
		return Event{}, false
	}
	e, err := daterange.ParseCompact(end)
	if err != nil {
		return Event{}, false
	}
	return Event{UID: uid, Start: s, End: e, Summary: summary}, true
}

func isEventMarker(rest string) bool {
	return strings.EqualFold(strings.TrimSpace(propertyValue(rest)), "VEVENT")
}

// unfold joins RFC 5545 continuation lines: a line break followed by a
// single space or tab is removed.
func unfold(data []byte) []byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\n "), nil)
	return bytes.ReplaceAll(data, []byte("\n\t"), nil)
}

// splitProperty returns the upper-cased property name and everything after
// it, parameters included.
func splitProperty(line string) (name, rest string) {
	i := strings.IndexAny(line, ":;")
	if i < 0 {
		return strings.ToUpper(strings.TrimSpace(line)), ""
	}
	return strings.ToUpper(strings.TrimSpace(line[:i])), line[i:]
}

// propertyValue drops parameters, returning the text after the first colon.
func propertyValue(rest string) string {
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

var textUnescaper = strings.NewReplacer(`\n`, " ", `\N`, " ", `\,`, ",", `\;`, ";", `\\`, `\`)

func unescapeText(s string) string {
	return strings.TrimSpace(textUnescaper.Replace(s))
}
