package telephony

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// TwiML rendering for instruction trees. This is the only file that knows
// Twilio's markup; everything above it works with Instruction values.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName  xml.Name `xml:"Dial"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Action   string   `xml:"action,attr,omitempty"`

	Clients []twimlClient `xml:"Client,omitempty"`
	Numbers []twimlNumber `xml:"Number,omitempty"`
}

type twimlClient struct {
	Name string `xml:",chardata"`
}

type twimlNumber struct {
	Number string `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name `xml:"Gather"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`

	Verbs []any `xml:",any"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderTwiML serializes an instruction tree into a TwiML document.
func RenderTwiML(instructions []Instruction) (string, error) {
	verbs, err := renderVerbs(instructions)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(twimlResponse{Verbs: verbs}); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderVerbs(instructions []Instruction) ([]any, error) {
	var verbs []any
	for _, in := range instructions {
		switch v := in.(type) {
		case Say:
			verbs = append(verbs, twimlSay{Text: v.Text})
		case Dial:
			d := twimlDial{Timeout: v.TimeoutSeconds, CallerID: v.CallerID, Action: v.ActionURL}
			for _, t := range v.Targets {
				switch {
				case t.ClientName != "":
					d.Clients = append(d.Clients, twimlClient{Name: t.ClientName})
				case t.Number != "":
					d.Numbers = append(d.Numbers, twimlNumber{Number: t.Number})
				default:
					return nil, fmt.Errorf("telephony: dial target has neither client nor number")
				}
			}
			if len(d.Clients) == 0 && len(d.Numbers) == 0 {
				return nil, fmt.Errorf("telephony: dial with no targets")
			}
			verbs = append(verbs, d)
		case Gather:
			nested, err := renderVerbs(v.Prompt)
			if err != nil {
				return nil, err
			}
			verbs = append(verbs, twimlGather{
				NumDigits: v.NumDigits,
				Timeout:   v.TimeoutSeconds,
				Action:    v.ActionURL,
				Verbs:     nested,
			})
		case Record:
			verbs = append(verbs, twimlRecord{Action: v.ActionURL, MaxLength: v.MaxLengthSeconds})
		case Redirect:
			verbs = append(verbs, twimlRedirect{URL: v.URL})
		case Hangup:
			verbs = append(verbs, twimlHangup{})
		default:
			return nil, fmt.Errorf("telephony: unknown instruction %T", in)
		}
	}
	return verbs, nil
}

// RenderMessageTwiML produces the reply document for an SMS webhook. An empty
// body renders an empty <Response/>, which tells the provider "no reply".
func RenderMessageTwiML(body string) (string, error) {
	type twimlMessage struct {
		XMLName xml.Name `xml:"Message"`
		Body    string   `xml:",chardata"`
	}
	r := twimlResponse{}
	if body != "" {
		r.Verbs = append(r.Verbs, twimlMessage{Body: body})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
