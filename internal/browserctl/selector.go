package browserctl

import (
	"fmt"
	"strings"
)

// Kind tells the page how to resolve a selector query.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

// Selector locates zero or more elements on a page. Desc is used in logs and
// errors so a failed step names what it was looking for.
type Selector struct {
	Query string
	Kind  Kind
	Desc  string
}

func (s Selector) String() string {
	if s.Desc != "" {
		return s.Desc
	}
	return s.Query
}

// CSS selects elements with a CSS selector.
func CSS(query string) Selector {
	return Selector{Query: query, Kind: KindCSS, Desc: "css " + query}
}

// XPath selects elements with an XPath expression.
func XPath(expr string) Selector {
	return Selector{Query: expr, Kind: KindXPath, Desc: "xpath " + expr}
}

// ByText selects elements owning a text node equal to text (whitespace normalised).
func ByText(text string) Selector {
	lit := xpathLiteral(text)
	return Selector{
		Query: fmt.Sprintf("//*[not(self::script or self::style)][text()[normalize-space(.)=%s]]", lit),
		Kind:  KindXPath,
		Desc:  fmt.Sprintf("text %q", text),
	}
}

// ByPlaceholder selects inputs by their placeholder attribute.
func ByPlaceholder(placeholder string) Selector {
	return Selector{
		Query: fmt.Sprintf("//*[@placeholder=%s]", xpathLiteral(placeholder)),
		Kind:  KindXPath,
		Desc:  fmt.Sprintf("placeholder %q", placeholder),
	}
}

// ByLabel selects form controls associated with a label: via <label for>, by
// nesting inside the label, or by aria-label.
func ByLabel(label string) Selector {
	lit := xpathLiteral(label)
	control := "(self::input or self::select or self::textarea)"
	q := strings.Join([]string{
		fmt.Sprintf("//*[%s and @id=//label[normalize-space(.)=%s]/@for]", control, lit),
		fmt.Sprintf("//label[normalize-space(.)=%s]//*[%s]", lit, control),
		fmt.Sprintf("//*[%s and @aria-label=%s]", control, lit),
	}, " | ")
	return Selector{Query: q, Kind: KindXPath, Desc: fmt.Sprintf("label %q", label)}
}

// implicitRoles maps ARIA roles to the element that carries them natively.
var implicitRoles = map[string]string{
	"button":   "button",
	"link":     "a",
	"combobox": "select",
	"dialog":   "dialog",
	"textbox":  "textarea",
}

// ByRole selects elements by ARIA role and accessible name (aria-label or text).
func ByRole(role, name string) Selector {
	roleLit := xpathLiteral(role)
	roleMatch := fmt.Sprintf("@role=%s", roleLit)
	if tag, ok := implicitRoles[role]; ok {
		roleMatch = fmt.Sprintf("(%s or self::%s)", roleMatch, tag)
	}
	q := fmt.Sprintf("//*[%s]", roleMatch)
	if name != "" {
		nameLit := xpathLiteral(name)
		q = fmt.Sprintf("//*[%s and (@aria-label=%s or normalize-space(.)=%s)]", roleMatch, nameLit, nameLit)
	}
	return Selector{Query: q, Kind: KindXPath, Desc: fmt.Sprintf("role %s name %q", role, name)}
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	args := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
