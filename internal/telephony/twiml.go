package telephony

import (
	"encoding/xml"
	"fmt"
)

// Default spoken-voice parameters for <Say> verbs.
const (
	SayVoice    = "alice"
	SayLanguage = "en-US"
)

// VoiceResponse is a TwiML document instructing the call leg what to do
// next. Verb order is fixed: speak (or play), then record or hang up.
type VoiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     *Say
	Play    *Play
	Record  *Record
	Hangup  *Hangup
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type Play struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type Record struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
	Trim      string   `xml:"trim,attr"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// NewSay builds a <Say> verb with the default voice.
func NewSay(text string) *Say {
	return &Say{Voice: SayVoice, Language: SayLanguage, Text: text}
}

// NewRecord builds a <Record> verb posting the recording back to action.
func NewRecord(action string, maxLength int) *Record {
	return &Record{
		Action:    action,
		Method:    "POST",
		MaxLength: maxLength,
		PlayBeep:  true,
		Trim:      "trim-silence",
	}
}

// Render serializes the response with an XML declaration.
func (r VoiceResponse) Render() (string, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal twiml: %w", err)
	}
	return xml.Header + string(out), nil
}
