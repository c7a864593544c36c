package memory

import (
	"regexp"
	"strings"
)

// Classification is the classifier's verdict for a piece of text.
type Classification struct {
	Type Type

	// Confident is false when the decision came from a weak signal. The
	// save path records this as an audit marker on the memory.
	Confident bool
}

// privateMarkers are phrases that strongly indicate personal content.
var privateMarkers = []string{
	"private:",
	"note to self",
	"remind me",
	"my ",
	"mine",
	"for me",
	"i am ",
	"i'm ",
	"i have ",
	"i need ",
	"i prefer ",
	"i like ",
	"i will ",
	"i was ",
}

// personalTerms suggest personal context even without first-person phrasing.
var personalTerms = []string{
	"birthday",
	"anniversary",
	"appointment",
	"wife",
	"husband",
	"partner",
	"daughter",
	"son",
	"mother",
	"father",
	"doctor",
	"dentist",
	"therapist",
	"phone number",
	"home address",
	"passport",
	"allergy",
	"allergic",
	"medication",
	"salary",
}

// systemMarkers are phrases typical of shared procedural or factual notes.
var systemMarkers = []string{
	"always ",
	"never ",
	"to deploy",
	"to build",
	"to run",
	"to release",
	"the policy",
	"the process",
	"the procedure",
	"office hours",
	"business hours",
	"on-call",
	"runbook",
	"use the",
	"run the",
	"everyone",
	"all users",
	"the team",
	"by default",
	"configuration",
	"documented",
}

// titlePattern matches honorifics followed by a capitalized name, a common
// shape for personal contacts ("Dr. Chen", "Mrs. Alvarez").
var titlePattern = regexp.MustCompile(`\b(Dr|Mr|Mrs|Ms|Prof)\.?\s+[A-Z][a-z]+`)

// firstPersonPattern matches standalone first-person pronouns.
var firstPersonPattern = regexp.MustCompile(`(?i)\b(i|me|my|mine|myself)\b`)

// Classify decides whether text is a private or system memory. It is a
// pure function: identical input always yields the identical result.
// Ambiguous text classifies as private with Confident=false, so personal
// content never leaks into the shared scope.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	var privateScore, systemScore int

	for _, marker := range privateMarkers {
		if strings.Contains(lower, marker) {
			privateScore += 2
		}
	}
	for _, term := range personalTerms {
		if strings.Contains(lower, term) {
			privateScore += 2
		}
	}
	if titlePattern.MatchString(text) {
		privateScore += 2
	}
	if firstPersonPattern.MatchString(text) {
		privateScore++
	}

	for _, marker := range systemMarkers {
		if strings.Contains(lower, marker) {
			systemScore += 2
		}
	}

	switch {
	case privateScore > systemScore:
		return Classification{Type: TypePrivate, Confident: privateScore-systemScore >= 2}
	case systemScore >= privateScore+2:
		return Classification{Type: TypeSystem, Confident: privateScore == 0}
	default:
		// No usable signal either way: fail closed to private so personal
		// content never lands in the shared scope.
		return Classification{Type: TypePrivate, Confident: false}
	}
}
