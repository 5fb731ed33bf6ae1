package tagmatch

// voidElements lists the tag names that never take a closing tag.
var voidElements = map[string]struct{}{
	"area":   {},
	"base":   {},
	"br":     {},
	"col":    {},
	"embed":  {},
	"hr":     {},
	"img":    {},
	"input":  {},
	"link":   {},
	"meta":   {},
	"param":  {},
	"source": {},
	"track":  {},
	"wbr":    {},

	// Obsolete and legacy elements.
	"command":  {},
	"keygen":   {},
	"menuitem": {},
	"basefont": {},
	"bgsound":  {},
	"frame":    {},
	"image":    {},
	"isindex":  {},
	"nextid":   {},

	"!doctype": {},
}

// IsVoidElement reports whether name is a void element. The name must
// already be lower-cased.
func IsVoidElement(name string) bool {
	_, ok := voidElements[name]
	return ok
}
