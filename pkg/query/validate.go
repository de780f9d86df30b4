package query

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Rule is a domain check applied to a query by New.
// A Rule returns nil when the query is acceptable.
type Rule func(Query) error

// New validates q and returns it ready for fetching.
// All problems are collected into a single *ValidationError.
func New(q Query, rules ...Rule) (Query, error) {
	var problems []string

	if err := validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Query{}, fmt.Errorf("validate query: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	keys := make([]string, 0, len(q.Filters))
	for key := range q.Filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key == "" {
			problems = append(problems, "filter with empty name")
			continue
		}
		if !isFilterValue(q.Filters[key]) {
			problems = append(problems, fmt.Sprintf("filter %q must be a scalar or a list", key))
		}
	}

	for _, rule := range rules {
		if err := rule(q); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return Query{}, &ValidationError{Problems: problems}
	}
	return q.clone(), nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be >= %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s (got %v)", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func isFilterValue(value any) bool {
	if value == nil {
		return true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan, reflect.Pointer:
		_, isStringer := value.(fmt.Stringer)
		return isStringer
	case reflect.Slice, reflect.Array:
		rv := reflect.ValueOf(value)
		for i := 0; i < rv.Len(); i++ {
			switch rv.Index(i).Kind() {
			case reflect.Map, reflect.Slice, reflect.Struct:
				return false
			}
		}
		return true
	default:
		return true
	}
}

// RequireCombination returns a Rule for endpoint that passes when the query
// sets every filter of at least one combination. An element of a combination
// may name alternatives separated by "|", e.g. "countries|country_code".
// Item requests are exempt.
func RequireCombination(endpoint string, combinations ...[]string) Rule {
	return func(q Query) error {
		if q.Endpoint != endpoint || q.ItemID != "" {
			return nil
		}

		set := lo.Filter(lo.Keys(q.Filters), func(key string, _ int) bool {
			_, ok := encodeValue(q.Filters[key])
			return ok
		})

		for _, combination := range combinations {
			missing := lo.Filter(combination, func(element string, _ int) bool {
				return len(lo.Intersect(strings.Split(element, "|"), set)) == 0
			})
			if len(missing) == 0 {
				return nil
			}
		}

		options := lo.Map(combinations, func(c []string, _ int) string {
			return "(" + strings.Join(c, " + ") + ")"
		})
		return fmt.Errorf("%s requires one of the filter combinations %s", endpoint, strings.Join(options, ", "))
	}
}
