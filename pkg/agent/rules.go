package agent

import (
	"context"
	"strings"
)

// Route names a handling path for one input.
type Route string

const (
	RouteSwap   Route = "swap"
	RouteConfig Route = "config"
	RouteClear  Route = "clear"
	RouteChat   Route = "chat"
)

// Command is one input prepared for classification. Normalized is only used
// for matching; Tokens keep the operator's casing for literal arguments.
type Command struct {
	Raw        string
	Normalized string
	Tokens     []string
}

// ParseCommand trims and case-folds text for matching and splits it into
// whitespace-separated tokens.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	return Command{
		Raw:        text,
		Normalized: strings.ToLower(trimmed),
		Tokens:     strings.Fields(trimmed),
	}
}

// Args returns the tokens after the first one.
func (c Command) Args() []string {
	if len(c.Tokens) <= 1 {
		return []string{}
	}
	return append([]string{}, c.Tokens[1:]...)
}

// Arg returns token i case-preserved, or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Tokens) {
		return ""
	}
	return c.Tokens[i]
}

// Matcher decides whether a rule applies. Matchers do no I/O.
type Matcher func(Command) bool

// Rule binds a route to its matcher and handler.
type Rule struct {
	Name   Route
	Match  Matcher
	Handle func(context.Context, Command)
}

// matchOrder is the classification order. The first match wins and the last
// entry always matches.
var matchOrder = []struct {
	Name  Route
	Match Matcher
}{
	{RouteSwap, func(c Command) bool { return strings.HasPrefix(c.Normalized, "swap") }},
	{RouteConfig, func(c Command) bool { return strings.HasPrefix(c.Normalized, "config") }},
	{RouteClear, func(c Command) bool { return c.Normalized == "clear" }},
	{RouteChat, func(Command) bool { return true }},
}

// Classify returns the route text would take.
func Classify(text string) Route {
	cmd := ParseCommand(text)
	for _, m := range matchOrder {
		if m.Match(cmd) {
			return m.Name
		}
	}
	return RouteChat
}

// bindRules pairs every route in matchOrder with its handler.
func bindRules(handlers map[Route]func(context.Context, Command)) []Rule {
	rules := make([]Rule, 0, len(matchOrder))
	for _, m := range matchOrder {
		rules = append(rules, Rule{Name: m.Name, Match: m.Match, Handle: handlers[m.Name]})
	}
	return rules
}
