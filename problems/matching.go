package problems

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Common charting abbreviations expanded before titles are compared, so that
// "HTN" and "Hypertension" normalize to the same string.
var titleAbbreviations = map[string]string{
	"htn":   "hypertension",
	"hld":   "hyperlipidemia",
	"dm":    "diabetes mellitus",
	"dm2":   "type 2 diabetes mellitus",
	"t2dm":  "type 2 diabetes mellitus",
	"t1dm":  "type 1 diabetes mellitus",
	"cad":   "coronary artery disease",
	"chf":   "congestive heart failure",
	"copd":  "chronic obstructive pulmonary disease",
	"ckd":   "chronic kidney disease",
	"gerd":  "gastroesophageal reflux disease",
	"afib":  "atrial fibrillation",
	"osa":   "obstructive sleep apnea",
	"oa":    "osteoarthritis",
	"ra":    "rheumatoid arthritis",
	"uti":   "urinary tract infection",
	"mi":    "myocardial infarction",
	"tia":   "transient ischemic attack",
	"pvd":   "peripheral vascular disease",
	"bph":   "benign prostatic hyperplasia",
	"mdd":   "major depressive disorder",
	"gad":   "generalized anxiety disorder",
}

// NormalizeTitle lowercases, strips punctuation and expands known
// abbreviations token by token.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	tokens := strings.Fields(sb.String())
	for i, token := range tokens {
		if expanded, ok := titleAbbreviations[token]; ok {
			tokens[i] = expanded
		}
	}
	return strings.Join(tokens, " ")
}

// TitleSimilarity returns a [0,1] similarity of two normalized titles, 1 being
// identical.
func TitleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// CodesMatch reports whether two ICD-10 codes refer to the same diagnosis
// family: equal, or one a prefix of the other down to the category level.
func CodesMatch(a, b string) bool {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	// An ICD-10 category is three characters; anything shorter is too vague to
	// count as a prefix match.
	if len(shorter) < 3 {
		return false
	}
	return strings.HasPrefix(longer, shorter)
}

// hintsConflict reports whether the mention carries a body-site or laterality
// hint that contradicts the candidate problem.
func hintsConflict(mentionSite, mentionLaterality string, problem *MedicalProblem) bool {
	if mentionSite != "" && problem.BodySite != "" && !strings.EqualFold(mentionSite, problem.BodySite) {
		return true
	}
	if mentionLaterality != "" && problem.Laterality != "" && !strings.EqualFold(mentionLaterality, problem.Laterality) {
		return true
	}
	return false
}
