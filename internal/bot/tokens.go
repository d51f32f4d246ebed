package bot

import "strings"

// Action tokens carried in inline keyboard callback data. The vocabulary is
// fixed; anything else arriving on the webhook is ignored.
const (
	tokenConsentYes = "consent_yes"
	tokenConsentNo  = "consent_no"

	tokenVoiceSave     = "voice_save"
	tokenVoiceRerecord = "voice_rerecord"
	tokenVoiceChange   = "voice_change"

	tokenSessionRestart = "session_restart"
	tokenSessionEnd     = "session_end"
)

// Demographic token prefixes ("age_18-24", "severity_Stammer", "region_Accra").
const (
	prefixAge      = "age"
	prefixSeverity = "severity"
	prefixRegion   = "region"
)

// splitToken splits "prefix_value" tokens; ok is false when there is no
// underscore.
func splitToken(token string) (prefix, value string, ok bool) {
	i := strings.Index(token, "_")
	if i < 0 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

// Question is one demographic question: the answer field it fills, the token
// prefix its buttons carry and the choices offered.
type Question struct {
	Field   string // demographic field name, e.g. "age_range"
	Prefix  string // callback token prefix, e.g. "age"
	Text    string
	Options []string
}

// ageQuestion is asked in both variants.
var ageQuestion = Question{
	Field:   "age_range",
	Prefix:  prefixAge,
	Text:    "Please select your age range:",
	Options: []string{"<18", "18-24", "25-34", "35-44", "45+"},
}

// clinicalQuestions extend the standard set with speech-impairment and
// regional metadata.
var clinicalQuestions = []Question{
	ageQuestion,
	{
		Field:   "severity",
		Prefix:  prefixSeverity,
		Text:    "Which best describes your speech?",
		Options: []string{"None", "Stammer", "Lisp", "Slurred", "Other"},
	},
	{
		Field:   "origin",
		Prefix:  prefixRegion,
		Text:    "Where are you from?",
		Options: []string{"Accra", "Kumasi", "Tamale", "Cape Coast", "Other"},
	},
}

// standardQuestions only collect the age range.
var standardQuestions = []Question{ageQuestion}
