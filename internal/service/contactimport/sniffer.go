package contactimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/contact-import/internal/domain"
)

// Header detection
const (
	MinHeaderConfidence = 0.6
	delimiterSampleRows = 20
	headerSampleRows    = 5
)

var candidateDelimiters = []string{",", ";", "\t"}

// SniffOptions lets the caller override detection.
type SniffOptions struct {
	Delimiter  string // empty means detect
	HasHeader  *bool  // nil means detect
	SampleRows int
	Suggest    FieldSuggester
}

// SniffResult is everything the sniffer learned about the raw content.
type SniffResult struct {
	Delimiter        string                 `json:"detected_delimiter"`
	HasHeader        bool                   `json:"has_header"`
	HeaderConfidence float64                `json:"header_confidence"`
	Headers          []string               `json:"headers"`
	SampleRows       [][]string             `json:"sample_rows"`
	Suggested        []domain.ColumnMapping `json:"suggested_mapping"`
	Rows             [][]string             `json:"-"`
}

// Sniff decodes raw content, detects its delimiter and header row, parses
// every data row and proposes a mapping. Suggestions are advisory.
func Sniff(raw []byte, opts SniffOptions) (*SniffResult, error) {
	text, err := decodeContent(raw)
	if err != nil {
		return nil, err
	}
	if opts.Suggest == nil {
		opts.Suggest = SuggestField
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = headerSampleRows
	}

	delim := opts.Delimiter
	if delim == "" {
		delim = detectDelimiter(sampleLines(text, delimiterSampleRows))
	}

	records, err := parseRecords(text, delim)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyOrUnreadableInput
	}

	res := &SniffResult{Delimiter: delim}
	first := records[0]
	rest := records[1:]

	res.HeaderConfidence = headerConfidence(first, head(rest, headerSampleRows))
	if opts.HasHeader != nil {
		res.HasHeader = *opts.HasHeader
	} else {
		res.HasHeader = res.HeaderConfidence >= MinHeaderConfidence
	}

	if res.HasHeader {
		res.Headers = uniqueHeaders(first)
		res.Rows = rest
	} else {
		res.Headers = syntheticHeaders(maxWidth(head(records, delimiterSampleRows)))
		res.Rows = records
	}
	if len(res.Rows) == 0 {
		return nil, domain.Errorf(domain.KindEmptyOrUnreadableInput, "input has a header row but no data rows")
	}

	res.SampleRows = head(res.Rows, opts.SampleRows)
	res.Suggested = suggestMapping(res.Headers, res.SampleRows, res.HasHeader, opts.Suggest)
	return res, nil
}

// ParseRows re-reads archived content with a known delimiter and header
// flag, returning only the data rows.
func ParseRows(raw []byte, delimiter string, hasHeader bool) ([][]string, error) {
	text, err := decodeContent(raw)
	if err != nil {
		return nil, err
	}
	records, err := parseRecords(text, delimiter)
	if err != nil {
		return nil, err
	}
	if hasHeader && len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}

func parseRecords(text, delim string) ([][]string, error) {
	if len([]rune(delim)) != 1 {
		return nil, domain.Errorf(domain.KindEmptyOrUnreadableInput, "unsupported delimiter %q", delim)
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = []rune(delim)[0]
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrEmptyOrUnreadableInput.WithCause(fmt.Errorf("parse delimited content: %w", err))
		}
		if blankRecord(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// detectDelimiter picks the candidate whose per-line count is most
// consistent, breaking ties by the higher count.
func detectDelimiter(lines []string) string {
	best, bestScore := ",", 0.0
	for _, d := range candidateDelimiters {
		counts := make([]int, 0, len(lines))
		for _, l := range lines {
			counts = append(counts, countOutsideQuotes(l, d))
		}
		mode, freq := modeOf(counts)
		if mode == 0 {
			continue
		}
		score := float64(freq)/float64(len(lines))*1000 + float64(mode)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countOutsideQuotes(line, delim string) int {
	n, inQuotes := 0, false
	d := []rune(delim)[0]
	for _, c := range line {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == d && !inQuotes:
			n++
		}
	}
	return n
}

func modeOf(counts []int) (mode, freq int) {
	seen := map[int]int{}
	for _, c := range counts {
		seen[c]++
		if seen[c] > freq || (seen[c] == freq && c > mode) {
			mode, freq = c, seen[c]
		}
	}
	return mode, freq
}

func sampleLines(text string, n int) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == n {
			break
		}
	}
	return lines
}

// headerConfidence combines four signals: known header names, type
// differences between the first row and the data, email cells appearing
// only below the first row, and the first row being mostly non-numeric.
func headerConfidence(first []string, data [][]string) float64 {
	scores := []float64{
		scoreKnownHeaders(first),
		scoreTypeConsistency(first, data),
		scoreEmailPattern(first, data),
		scoreNumericPattern(first),
	}
	weights := []float64{0.4, 0.3, 0.2, 0.1}

	var total float64
	for i, s := range scores {
		total += s * weights[i]
	}
	return total
}

func scoreKnownHeaders(headers []string) float64 {
	if len(headers) == 0 {
		return 0
	}
	matched := 0
	for _, h := range headers {
		if isKnownHeader(h) {
			matched++
		}
	}
	return float64(matched) / float64(len(headers))
}

func scoreTypeConsistency(first []string, data [][]string) float64 {
	if len(data) == 0 {
		return 0.5
	}
	if len(first) == 0 {
		return 0
	}
	different := 0
	for col, v := range first {
		numeric, email := 0, 0
		for _, row := range data {
			if col >= len(row) {
				continue
			}
			if isNumericString(row[col]) {
				numeric++
			}
			if strings.Contains(row[col], "@") {
				email++
			}
		}
		half := (len(data) + 1) / 2
		if !isNumericString(v) && numeric >= half {
			different++
		} else if !strings.Contains(v, "@") && email >= half {
			different++
		}
	}
	return float64(different) / float64(len(first))
}

func scoreEmailPattern(first []string, data [][]string) float64 {
	headerHasEmail := false
	for _, c := range first {
		if emailPattern.MatchString(strings.TrimSpace(c)) {
			headerHasEmail = true
			break
		}
	}
	dataHasEmail := false
	for _, row := range data {
		for _, c := range row {
			if emailPattern.MatchString(strings.TrimSpace(c)) {
				dataHasEmail = true
				break
			}
		}
	}
	switch {
	case headerHasEmail:
		return 0
	case dataHasEmail:
		return 1
	default:
		return 0.5
	}
}

func scoreNumericPattern(first []string) float64 {
	if len(first) == 0 {
		return 0
	}
	numeric := 0
	for _, c := range first {
		if isNumericString(c) || looksLikePhone(c) {
			numeric++
		}
	}
	if float64(numeric)/float64(len(first)) > 0.5 {
		return 0
	}
	return 1 - float64(numeric)/float64(len(first))
}

func isNumericString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' {
			return false
		}
	}
	return true
}

// uniqueHeaders trims headers, names blank ones column_N and suffixes
// duplicates so every column has a distinct mapping key.
func uniqueHeaders(row []string) []string {
	out := make([]string, len(row))
	seen := map[string]int{}
	for i, h := range row {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		base := h
		for seen[strings.ToLower(h)] > 0 {
			seen[strings.ToLower(base)]++
			h = fmt.Sprintf("%s_%d", base, seen[strings.ToLower(base)])
		}
		seen[strings.ToLower(h)]++
		out[i] = h
	}
	return out
}

func syntheticHeaders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func head(rows [][]string, n int) [][]string {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
