package flow

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const defaultEmailPattern = `^[^@]+@[^@]+\.[^@]+$`

type validator func(answer string) bool

type ruleBuilder func(Rule) (validator, error)

var ruleKinds = map[string]ruleBuilder{
	"non_empty": buildNonEmpty,
	"pattern":   buildPattern,
	"one_of":    buildOneOf,
}

func compileRule(r Rule) (validator, error) {
	build, ok := ruleKinds[r.Kind]
	if !ok {
		return nil, errors.Errorf("flow: unknown rule kind %q", r.Kind)
	}
	return build(r)
}

func buildNonEmpty(Rule) (validator, error) {
	return func(answer string) bool {
		return strings.TrimSpace(answer) != ""
	}, nil
}

func buildPattern(r Rule) (validator, error) {
	pattern := r.Pattern
	if pattern == "" {
		pattern = defaultEmailPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "flow: compile pattern %q", pattern)
	}
	return re.MatchString, nil
}

// buildOneOf matches trimmed answers case-insensitively.
func buildOneOf(r Rule) (validator, error) {
	if len(r.Options) == 0 {
		return nil, errors.New("flow: one_of rule needs options")
	}
	allowed := make(map[string]struct{}, len(r.Options))
	for _, opt := range r.Options {
		allowed[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	return func(answer string) bool {
		_, ok := allowed[strings.ToLower(strings.TrimSpace(answer))]
		return ok
	}, nil
}
