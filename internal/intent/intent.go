// Package intent classifies patient utterances into a fixed set of labels
// used by the call flow to pick the next reply and decide call termination.
package intent

import "regexp"

// Intent is the classified purpose of a patient utterance.
type Intent string

const (
	Negative   Intent = "negative"
	Scheduling Intent = "scheduling"
	Positive   Intent = "positive"
	Fallback   Intent = "fallback"
)

// Word-boundary matching keeps partial words from triggering a label
// ("nobody" must not read as a refusal).
var (
	negativePat = regexp.MustCompile(`(?i)\b(no|nah|not interested|stop|don'?t|do not|decline)\b`)
	positivePat = regexp.MustCompile(`(?i)\b(yes|yeah|yep|sure|okay|ok|interested|book|sounds good)\b`)
	dayPat      = regexp.MustCompile(`(?i)\b((mon|tues?|wed(nes)?|thurs?|fri|satur?|sun)(day)?|today|tomorrow)\b`)
	datePat     = regexp.MustCompile(`(?i)\b(\d{1,2}(st|nd|rd|th)?\s*(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)?|\d{4}-\d{2}-\d{2})\b`)
	timePat     = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*(am|pm)?)\b`)
)

// Classify maps free text to an Intent. It is total: empty input yields
// Fallback. Priority is deliberate and strict: a refusal wins over anything
// else, and a day/date plus time co-occurrence wins over a bare
// acknowledgment, because only a concrete slot closes the booking loop.
func Classify(text string) Intent {
	if negativePat.MatchString(text) {
		return Negative
	}
	if (dayPat.MatchString(text) || datePat.MatchString(text)) && timePat.MatchString(text) {
		return Scheduling
	}
	if positivePat.MatchString(text) {
		return Positive
	}
	return Fallback
}
