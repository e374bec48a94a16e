package htmldoc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func isInput(el *goquery.Selection, inputType string) bool {
	return goquery.NodeName(el) == "input" && strings.EqualFold(el.AttrOr("type", "text"), inputType)
}

func isSubmitControl(el *goquery.Selection) bool {
	switch goquery.NodeName(el) {
	case "button":
		return strings.EqualFold(el.AttrOr("type", "submit"), "submit")
	case "input":
		t := strings.ToLower(el.AttrOr("type", ""))
		return t == "submit" || t == "image"
	}
	return false
}

func isDisabled(el *goquery.Selection) bool {
	return el.Is("[disabled]") || el.Closest("fieldset[disabled]").Length() > 0
}

// isHidden approximates visibility from markup: hidden attributes, inline styles and
// elements that never render.
func isHidden(el *goquery.Selection) bool {
	if isInput(el, "hidden") {
		return true
	}
	hidden := false
	el.AddSelection(el.Parents()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "head", "script", "style", "template", "noscript":
			hidden = true
			return false
		}
		if s.Is("[hidden]") {
			hidden = true
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			hidden = true
			return false
		}
		return true
	})
	return hidden
}

func toggleAttr(el *goquery.Selection, name string, on bool) {
	if on {
		el.SetAttr(name, name)
	} else {
		el.RemoveAttr(name)
	}
}

func checkRadio(doc *goquery.Document, el *goquery.Selection) {
	if name, ok := el.Attr("name"); ok {
		doc.Find("input[type=radio]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("name", "") == name
		}).RemoveAttr("checked")
	}
	el.SetAttr("checked", "checked")
}

func setFieldValue(el *goquery.Selection, selector, value string) error {
	if isDisabled(el) {
		return fmt.Errorf("%s is disabled", selector)
	}
	switch goquery.NodeName(el) {
	case "textarea":
		el.SetText(value)
	case "input":
		el.SetAttr("value", value)
	default:
		if _, ok := el.Attr("contenteditable"); !ok {
			return fmt.Errorf("%s is not a text field", selector)
		}
		el.SetText(value)
	}
	return nil
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

func fieldValue(el *goquery.Selection) string {
	switch goquery.NodeName(el) {
	case "textarea":
		return el.Text()
	case "select":
		selected := el.Find("option[selected]").First()
		if selected.Length() == 0 {
			selected = el.Find("option").First()
		}
		if selected.Length() == 0 {
			return ""
		}
		return optionValue(selected)
	default:
		return el.AttrOr("value", "")
	}
}

func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, s *goquery.Selection) {
		if isDisabled(s) {
			return
		}
		name := s.AttrOr("name", "")
		if goquery.NodeName(s) == "input" {
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "checkbox", "radio":
				if !s.Is("[checked]") {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
				return
			case "submit", "button", "image", "reset", "file":
				return
			}
		}
		values.Add(name, fieldValue(s))
	})
	return values
}
