package visionplus

import (
	"bytes"
	"regexp"
	"strings"
	"visionsync-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// the three web forms state tokens every postback must carry, even empty
var requiredStateFields = []string{
	"__VIEWSTATE",
	"__EVENTVALIDATION",
	"__VIEWSTATEGENERATOR",
}

func defaultStateFields() map[string]string {
	fields := make(map[string]string, len(requiredStateFields))
	for _, name := range requiredStateFields {
		fields[name] = ""
	}
	return fields
}

var (
	inputTagRegex  = regexp.MustCompile(`(?is)<input\b[^>]*>`)
	selectTagRegex = regexp.MustCompile(`(?is)<select\b[^>]*>`)
	formTagRegex   = regexp.MustCompile(`(?is)<form\b[^>]*>`)
	attrRegex      = regexp.MustCompile(`(?s)([a-zA-Z_:][-a-zA-Z0-9_:.$]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+))`)
)

// permissive second pass patterns for tokens the generic pass is known to miss
// when the remote markup reorders id/name/value
var fallbackTokenPatterns = map[string][]*regexp.Regexp{
	"__VIEWSTATE": {
		regexp.MustCompile(`(?i)<input[^>]*name="__VIEWSTATE"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)<input[^>]*name="__VIEWSTATE"[^>]*id="__VIEWSTATE"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)id="__VIEWSTATE"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)value="([^"]*)"[^>]*(?:name|id)="__VIEWSTATE"`),
	},
	"__EVENTVALIDATION": {
		regexp.MustCompile(`(?i)<input[^>]*name="__EVENTVALIDATION"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)<input[^>]*name="__EVENTVALIDATION"[^>]*id="__EVENTVALIDATION"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)id="__EVENTVALIDATION"[^>]*value="([^"]*)"`),
		regexp.MustCompile(`(?i)value="([^"]*)"[^>]*(?:name|id)="__EVENTVALIDATION"`),
	},
	"__VIEWSTATEGENERATOR": {
		regexp.MustCompile(`(?i)<input[^>]*name="__VIEWSTATEGENERATOR"[^>]*value="([^"]*)"`),
	},
	"hdnFldPracId": {
		regexp.MustCompile(`(?i)<input[^>]*name="hdnFldPracId"[^>]*value="([^"]*)"`),
	},
}

// parseAttributes reads the attributes of a single start tag regardless of
// their order. Keys are lowercased, values are entity decoded.
func parseAttributes(tag string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRegex.FindAllStringSubmatch(tag, -1) {
		key := strings.ToLower(m[1])
		if _, exists := attrs[key]; exists {
			continue
		}
		value := m[2]
		if value == "" {
			value = m[3]
		}
		if value == "" {
			value = m[4]
		}
		attrs[key] = html.UnescapeString(value)
	}
	return attrs
}

// ExtractHiddenFields returns every hidden input on the page keyed by name.
// The three state tokens are always present in the result, empty when the page
// does not carry them.
func ExtractHiddenFields(page string) map[string]string {
	fields := map[string]string{}

	for _, tag := range inputTagRegex.FindAllString(page, -1) {
		attrs := parseAttributes(tag)
		if !strings.EqualFold(attrs["type"], "hidden") {
			continue
		}
		name := attrs["name"]
		if name == "" {
			continue
		}
		fields[name] = attrs["value"]
	}

	for name, patterns := range fallbackTokenPatterns {
		if fields[name] != "" {
			continue
		}
		for _, pattern := range patterns {
			groups := pattern.FindStringSubmatch(page)
			if len(groups) >= 2 && groups[1] != "" {
				fields[name] = html.UnescapeString(groups[1])
				break
			}
		}
	}

	for _, name := range requiredStateFields {
		if _, ok := fields[name]; !ok {
			fields[name] = ""
		}
	}

	return fields
}

var loginIndicators = []string{
	"login",
	"log in",
	"password",
	"login.aspx",
	"logout.aspx",
	"ctl00_lblusertime",
	"please log in",
	"unauthorized",
}

// CheckRequiresLogin is a heuristic, it reports whether the page looks like it
// asks for (or is gated behind) a login.
func CheckRequiresLogin(page string) bool {
	lower := strings.ToLower(page)
	for _, indicator := range loginIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

const NoTitle = "No title found"

func ExtractPageTitle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return NoTitle
	}
	title := htmlutil.Title(doc)
	if title == "" {
		return NoTitle
	}
	return title
}

type FormDetails struct {
	Action             string `json:"action,omitempty"`
	Method             string `json:"method"`
	FormId             string `json:"formId,omitempty"`
	HasViewState       bool   `json:"hasViewState"`
	HasEventValidation bool   `json:"hasEventValidation"`
	HasEventTarget     bool   `json:"hasEventTarget"`
	HasEventArgument   bool   `json:"hasEventArgument"`
	InputFields        int    `json:"inputFields"`
	SelectFields       int    `json:"selectFields"`
	TotalFields        int    `json:"totalFields"`
}

// ExtractFormDetails describes the first form on the page. Missing attributes
// are left empty, the method defaults to POST.
func ExtractFormDetails(page string) FormDetails {
	details := FormDetails{Method: "POST"}

	formTag := formTagRegex.FindString(page)
	if formTag != "" {
		attrs := parseAttributes(formTag)
		details.Action = attrs["action"]
		details.FormId = attrs["id"]
		if method := attrs["method"]; method != "" {
			details.Method = strings.ToUpper(method)
		}
	}

	details.HasViewState = strings.Contains(page, "__VIEWSTATE")
	details.HasEventValidation = strings.Contains(page, "__EVENTVALIDATION")
	details.HasEventTarget = strings.Contains(page, "__EVENTTARGET")
	details.HasEventArgument = strings.Contains(page, "__EVENTARGUMENT")
	details.InputFields = len(inputTagRegex.FindAllStringIndex(page, -1))
	details.SelectFields = len(selectTagRegex.FindAllStringIndex(page, -1))
	details.TotalFields = details.InputFields + details.SelectFields

	return details
}

func HasForm(page string) bool {
	return strings.Contains(page, "<form") || strings.Contains(page, "aspnetForm")
}

type Option struct {
	Value string
	Label string
}

// ExtractSelectOptions lists the options of the named <select>. It returns nil
// when the page cannot be parsed or the select does not exist.
func ExtractSelectOptions(page string, name string) []Option {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(page))
	if err != nil {
		return nil
	}

	var options []Option
	doc.Find("select").Each(func(_ int, sel *goquery.Selection) {
		if sel.AttrOr("name", "") != name {
			return
		}
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			label := htmlutil.CleanText(opt)
			value, ok := opt.Attr("value")
			if !ok {
				value = label
			}
			options = append(options, Option{Value: value, Label: label})
		})
	})
	return options
}

var remoteIdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:AppointmentId|AppointmentNo|ApptId)\s*[=:]\s*["']?([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)(?:AppointmentId|AppointmentNo|ApptId)["']?\s+value\s*=\s*["']([A-Za-z0-9\-]+)`),
}

// ExtractRemoteId looks for the identifier VisionPlus assigned to a freshly
// created appointment, first in a redirect target, then in the page itself.
func ExtractRemoteId(location string, page string) string {
	for _, source := range []string{location, page} {
		if source == "" {
			continue
		}
		for _, pattern := range remoteIdPatterns {
			for _, groups := range pattern.FindAllStringSubmatch(source, -1) {
				if groups[1] != "" && groups[1] != "0" {
					return groups[1]
				}
			}
		}
	}
	return ""
}
