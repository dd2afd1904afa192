package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/locations"
	"github.com/perundhu/platform/pkg/schedule"
)

var (
	timePattern      = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*(am|pm|a\.m\.|p\.m\.)?`)
	separatorPattern = regexp.MustCompile(`\s*(?:→|->|=>|–|—|-|\bto\b)\s*`)
	arrivalPattern   = regexp.MustCompile(`(?i)\b(arr|arrival|arrives)\b`)
	labelPattern     = regexp.MustCompile(`(?i)\b(dep|departure|departs|arr|arrival|arrives|time|timing|timings)\b[:.]?`)
)

// Parser turns normalized OCR text into timing candidates. It never
// errors: lines it cannot read are dropped and the loss shows up in the
// coverage signal instead.
type Parser struct {
	catalog          *locations.Catalog
	minConfidence    float64
	ambiguousPenalty float64
}

func New(catalog *locations.Catalog, minConfidence, ambiguousPenalty float64) *Parser {
	if minConfidence <= 0 {
		minConfidence = 0.4
	}
	if ambiguousPenalty <= 0 || ambiguousPenalty >= 1 {
		ambiguousPenalty = 0.15
	}
	return &Parser{catalog: catalog, minConfidence: minConfidence, ambiguousPenalty: ambiguousPenalty}
}

type Input struct {
	EnglishText   string
	OriginalText  string
	Origin        string // the board's origin location, fallback from-endpoint
	BoardType     contribution.BoardType
	OCRConfidence float64
}

type Output struct {
	Candidates           []contribution.Candidate
	AverageConfidence    float64
	RequiresManualReview bool
	ReviewNote           string
}

func (p *Parser) Parse(in Input) Output {
	candidates := p.parseText(in.EnglishText, in)
	if len(candidates) == 0 && in.OriginalText != "" && in.OriginalText != in.EnglishText {
		// Names that transliterate poorly sometimes survive only in the
		// original script; the catalog indexes those too.
		candidates = p.parseText(in.OriginalText, in)
	}

	out := Output{Candidates: candidates}
	if len(candidates) == 0 {
		out.RequiresManualReview = true
		out.ReviewNote = "no timing candidates recovered from OCR text"
		return out
	}

	total := 0.0
	for _, cand := range candidates {
		total += cand.Confidence
	}
	out.AverageConfidence = total / float64(len(candidates))
	if out.AverageConfidence < p.minConfidence {
		out.RequiresManualReview = true
		out.ReviewNote = "average candidate confidence below threshold"
	}
	return out
}

func (p *Parser) parseText(text string, in Input) []contribution.Candidate {
	var candidates []contribution.Candidate
	for lineNo, line := range strings.Split(text, "\n") {
		// Boards often list "Vellore 06:00, 07:30": later segments
		// carry only times and inherit the segment's route.
		carryFrom, carryTo := "", ""
		for _, piece := range strings.Split(line, ",") {
			parsed, from, to := p.parseSegment(piece, lineNo+1, in, carryFrom, carryTo)
			if to != "" {
				carryFrom, carryTo = from, to
			}
			candidates = append(candidates, parsed...)
		}
	}
	return candidates
}

func (p *Parser) parseSegment(segment string, lineNo int, in Input, carryFrom, carryTo string) ([]contribution.Candidate, string, string) {
	trimmed := strings.TrimSpace(segment)
	if trimmed == "" {
		return nil, "", ""
	}

	timingType := schedule.TimingDeparture
	if arrivalPattern.MatchString(trimmed) {
		timingType = schedule.TimingArrival
	}

	timeMatches := timePattern.FindAllStringSubmatch(trimmed, -1)
	if len(timeMatches) == 0 {
		return nil, "", ""
	}

	names := trimmed
	names = timePattern.ReplaceAllString(names, " ")
	names = labelPattern.ReplaceAllString(names, " ")

	fromName, toName := p.splitEndpoints(names, in.Origin)
	if toName == "" && carryTo != "" {
		fromName, toName = carryFrom, carryTo
	}
	if toName == "" {
		return nil, "", ""
	}

	fromID, fromCanonical, fromExact := p.resolveName(fromName)
	toID, toCanonical, toExact := p.resolveName(toName)

	endpointFactor := 1.0
	switch {
	case fromID == "" || toID == "":
		endpointFactor = 0.6
	case !fromExact || !toExact:
		endpointFactor = 0.85
	}

	var candidates []contribution.Candidate
	for _, match := range timeMatches {
		clock, clarity, ok := p.normalizeClock(match, in.BoardType)
		if !ok {
			continue
		}
		candidates = append(candidates, contribution.Candidate{
			FromLocationName: fromCanonical,
			FromLocationID:   fromID,
			ToLocationName:   toCanonical,
			ToLocationID:     toID,
			DepartureTime:    clock,
			TimingType:       timingType,
			Confidence:       clamp(in.OCRConfidence * clarity * endpointFactor),
			LineNumber:       lineNo,
		})
	}
	return candidates, fromName, toName
}

// splitEndpoints separates "Chennai - Vellore" style routes; a bare
// destination inherits the board's origin as its from-endpoint, since
// stand boards list departures from where they hang.
func (p *Parser) splitEndpoints(names, origin string) (string, string) {
	parts := separatorPattern.Split(names, 2)
	if len(parts) == 2 {
		from := strings.TrimSpace(parts[0])
		to := strings.TrimSpace(parts[1])
		if from != "" && to != "" {
			return from, to
		}
		if to != "" {
			return strings.TrimSpace(origin), to
		}
	}
	return strings.TrimSpace(origin), strings.TrimSpace(names)
}

func (p *Parser) resolveName(name string) (id, canonical string, exact bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	match, ok := p.catalog.Resolve(name)
	if !ok {
		return "", name, false
	}
	return match.Location.ID, match.Location.Name, match.Exact
}

// normalizeClock resolves 12/24h ambiguity deterministically. Explicit
// meridiems and unambiguous 24h values read literally; bare 1:00-6:59 on
// boards that are not 24h-biased shift into the afternoon service
// window, at a confidence penalty. Clarity never silently stays 1.0 for
// a guessed reading.
func (p *Parser) normalizeClock(match []string, board contribution.BoardType) (string, float64, bool) {
	hour, err := strconv.Atoi(match[1])
	if err != nil {
		return "", 0, false
	}
	minute, err := strconv.Atoi(match[2])
	if err != nil {
		return "", 0, false
	}
	if hour > 23 || minute > 59 {
		return "", 0, false
	}

	meridiem := strings.ToLower(strings.ReplaceAll(match[3], ".", ""))
	clarity := 1.0

	switch {
	case meridiem == "am":
		if hour == 12 {
			hour = 0
		}
	case meridiem == "pm":
		if hour != 12 {
			hour += 12
		}
		if hour > 23 {
			return "", 0, false
		}
	case hour == 0 || hour >= 13:
		// Unambiguous 24h reading.
	case board == contribution.BoardInterCity || board == contribution.BoardGovernment:
		// Long-haul and government boards print 24h clocks.
		clarity = 1.0 - p.ambiguousPenalty/2
	case hour >= 1 && hour <= 3:
		// Buses rarely leave between 01:00 and 04:00; a bare small hour
		// almost always means the afternoon.
		hour += 12
		clarity = 1.0 - p.ambiguousPenalty
	default:
		clarity = 1.0 - p.ambiguousPenalty
	}

	return schedule.Clock(hour*60 + minute), clarity, true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
