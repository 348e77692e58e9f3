package model

// Route is one immutable entry in the route table: a method/path-template
// pair bound to a handler name and its declared resource requirement.
type Route struct {
	Method      string
	Pattern     string // e.g. "/users/{id}", chi-style named segments
	HandlerName string
	Resources   ResourceVector
}
