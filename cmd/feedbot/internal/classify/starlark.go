// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"go.astrophena.name/feedbot/cmd/feedbot/internal/news"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// DefaultScript is the classification script used when the state directory
// has none.
//
//go:embed categories.star
var DefaultScript string

// Script is a [Policy] defined by a Starlark program.
//
// The program may define a list of rules:
//
//	rules = [
//	    rule(category = "security", keywords = ["krebsonsecurity", "bleepingcomputer"]),
//	]
//
// and a classify function that receives an item with title, link, summary,
// source and feed_url fields:
//
//	def classify(item):
//	    if "iphone" in item.title.lower():
//	        return "mobile"
//	    return None
//
// When classify returns None or fails, rules are consulted.
type Script struct {
	rules    Rules
	classify *starlark.Function
	logger   *slog.Logger
}

// Load executes a classification script named filename.
func Load(filename, src string, logger *slog.Logger) (*Script, error) {
	if logger == nil {
		logger = slog.Default()
	}
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{TopLevelControl: true},
		&starlark.Thread{
			Name:  filename,
			Print: func(_ *starlark.Thread, msg string) { logger.Info(msg, "script", filename) },
		},
		filename,
		src,
		starlark.StringDict{
			"rule": starlark.NewBuiltin("rule", ruleBuiltin),
		},
	)
	if err != nil {
		return nil, err
	}

	s := &Script{logger: logger}

	if v, ok := globals["rules"]; ok {
		list, ok := v.(*starlark.List)
		if !ok {
			return nil, errors.New("rules must be a list")
		}
		for i := range list.Len() {
			elem := list.Index(i)
			r, ok := elem.(*ruleValue)
			if !ok {
				return nil, fmt.Errorf("rules must contain only rule() values, got %s", elem.Type())
			}
			s.rules = append(s.rules, r.Rule)
		}
	}

	if v, ok := globals["classify"]; ok {
		fn, ok := v.(*starlark.Function)
		if !ok {
			return nil, errors.New("classify must be a function")
		}
		if fn.NumParams() != 1 {
			return nil, errors.New("classify must accept exactly one argument")
		}
		s.classify = fn
	}

	return s, nil
}

// Rules returns the rules defined by the script.
func (s *Script) Rules() Rules { return s.rules }

// Classify implements [Policy].
func (s *Script) Classify(it *news.Item) string {
	if s.classify != nil {
		category, err := s.call(it)
		if err != nil {
			s.logger.Warn("classify failed, falling back to rules", "item", it.Link, "error", err)
		} else if category != "" {
			return category
		}
	}
	return s.rules.Classify(it)
}

func (s *Script) call(it *news.Item) (string, error) {
	val, err := starlark.Call(
		&starlark.Thread{
			Name:  "classify",
			Print: func(_ *starlark.Thread, msg string) { s.logger.Info(msg, "item", it.Link) },
		},
		s.classify,
		starlark.Tuple{starlarkstruct.FromStringDict(
			starlarkstruct.Default,
			starlark.StringDict{
				"title":    starlark.String(it.Title),
				"link":     starlark.String(it.Link),
				"summary":  starlark.String(it.SummaryRaw),
				"source":   starlark.String(it.SourceName),
				"feed_url": starlark.String(it.FeedURL),
			},
		)},
		nil,
	)
	if err != nil {
		return "", err
	}
	switch v := val.(type) {
	case starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(v), nil
	default:
		return "", fmt.Errorf("classify returned %s, want string or None", val.Type())
	}
}

type ruleValue struct{ Rule }

func (r *ruleValue) String() string        { return fmt.Sprintf("<rule category=%q>", r.Category) }
func (r *ruleValue) Type() string          { return "rule" }
func (r *ruleValue) Freeze()               {} // immutable
func (r *ruleValue) Truth() starlark.Bool  { return starlark.Bool(r.Category != "") }
func (r *ruleValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", r.Type()) }

func ruleBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", b.Name())
	}
	var (
		category string
		keywords *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"category", &category,
		"keywords", &keywords,
	); err != nil {
		return nil, err
	}
	if category == "" {
		return nil, fmt.Errorf("%s: category must not be empty", b.Name())
	}
	r := &ruleValue{Rule{Category: category}}
	for i := range keywords.Len() {
		elem := keywords.Index(i)
		kw, ok := starlark.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("%s: keywords must be strings, got %s", b.Name(), elem.Type())
		}
		r.Keywords = append(r.Keywords, kw)
	}
	return r, nil
}

var (
	_ Policy         = (*Script)(nil)
	_ Policy         = Rules(nil)
	_ starlark.Value = (*ruleValue)(nil)
)
