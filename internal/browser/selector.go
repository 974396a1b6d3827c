package browser

// By identifies a selector language.
type By int

const (
	ByCSS By = iota
	ByXPath
)

// Selector locates one element on a page.
type Selector struct {
	By    By
	Value string
}

// CSS builds a CSS selector.
func CSS(value string) Selector {
	return Selector{By: ByCSS, Value: value}
}

// XPath builds an XPath selector.
func XPath(value string) Selector {
	return Selector{By: ByXPath, Value: value}
}

// IsZero reports whether the selector is unset.
func (s Selector) IsZero() bool {
	return s.Value == ""
}

func (s Selector) String() string {
	if s.By == ByXPath {
		return "xpath(" + s.Value + ")"
	}

	return "css(" + s.Value + ")"
}
