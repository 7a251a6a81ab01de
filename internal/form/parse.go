package form

import (
	"regexp"
	"strings"
)

// Label sets for the line-anchored pass. A line matches a field when the part
// before the first colon contains one of the field's labels as a whole word.
var fieldLabelPatterns = map[string]*regexp.Regexp{
	FieldBiodata:      regexp.MustCompile(`(?i)\b(nama|biodata|domisili)\b`),
	FieldSourceInfo:   regexp.MustCompile(`(?i)\b(sumber|source|dari|info)\b`),
	FieldBusinessType: regexp.MustCompile(`(?i)\b(jenis bisnis|tipe bisnis|bisnis)\b`),
	FieldBudget:       regexp.MustCompile(`(?i)\b(budget|anggaran|modal|dana)\b`),
	FieldStartPlan:    regexp.MustCompile(`(?i)\b(kapan|mulai|start|timeline|rencana)\b`),
}

var sourceKeywords = []string{
	"instagram", "facebook", "google", "tiktok", "youtube",
	"referral", "teman", "iklan", "ads", "website", "event",
}

var businessKeywords = []string{
	"fnb", "f&b", "retail", "service", "jasa", "makanan", "minuman",
	"food", "beverage", "fashion", "kuliner",
}

var startPlanKeywords = []string{
	"bulan", "month", "minggu", "week", "tahun", "year",
	"segera", "asap", "immediately", "q1", "q2", "q3", "q4",
}

var budgetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:rp\.?\s*)?\d+(?:[.,]\d+)*\s*(?:juta|jt|million|m)\b`),
	regexp.MustCompile(`(?i)\b(?:rp\.?\s*)?\d+(?:[.,]\d+)*\s*(?:milyar|miliar|billion|b)\b`),
	regexp.MustCompile(`(?i)\brp\.?\s*\d+(?:[.,]\d+)*\b`),
}

// formKeywords drive IsFormSubmission and intent classification: two or more
// hits means the text is almost certainly a form answer, not smalltalk.
var formKeywords = []string{
	"nama", "biodata", "domisili",
	"sumber", "bisnis", "usaha",
	"budget", "anggaran", "modal", "dana",
	"mulai", "rencana", "timeline",
}

// Parse extracts whatever qualification fields the text carries. The
// line-anchored label pass wins; keyword fallbacks only fill fields the first
// pass left empty.
func Parse(text string) Fragment {
	var out Fragment

	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		label := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		if value == "" {
			continue
		}
		for _, field := range fieldOrder {
			if out.get(field) != "" {
				continue
			}
			if fieldLabelPatterns[field].MatchString(label) {
				out.set(field, value)
				break
			}
		}
	}

	lower := strings.ToLower(text)

	if out.SourceInfo == "" {
		if kw := firstKeyword(lower, sourceKeywords); kw != "" {
			out.SourceInfo = sentenceAround(text, kw)
		}
	}
	if out.BusinessType == "" {
		if kw := firstKeyword(lower, businessKeywords); kw != "" {
			out.BusinessType = sentenceAround(text, kw)
		}
	}
	if out.Budget == "" {
		for _, re := range budgetPatterns {
			if m := re.FindString(text); m != "" {
				out.Budget = strings.TrimSpace(m)
				break
			}
		}
	}
	if out.StartPlan == "" {
		if kw := firstKeyword(lower, startPlanKeywords); kw != "" {
			out.StartPlan = sentenceAround(text, kw)
		}
	}

	return out
}

// IsFormSubmission reports whether free text looks like a form answer: at
// least two form keywords, or any labeled line.
func IsFormSubmission(text string) bool {
	if CountFormKeywords(text) >= 2 {
		return true
	}
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		if strings.TrimSpace(line[idx+1:]) == "" {
			continue
		}
		label := line[:idx]
		for _, field := range fieldOrder {
			if fieldLabelPatterns[field].MatchString(label) {
				return true
			}
		}
	}
	return false
}

// CountFormKeywords counts distinct form-related keywords present in text.
func CountFormKeywords(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, kw := range formKeywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func firstKeyword(lowerText string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			return kw
		}
	}
	return ""
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]`)

// sentenceAround returns the trimmed sentence of text containing the keyword.
func sentenceAround(text, keyword string) string {
	for _, sentence := range sentenceSplit.Split(text, -1) {
		if strings.Contains(strings.ToLower(sentence), keyword) {
			return strings.TrimSpace(sentence)
		}
	}
	return ""
}
