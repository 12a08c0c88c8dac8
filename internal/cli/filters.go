package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/foxmirror/internal/ir"
	"github.com/roach88/foxmirror/internal/queryir"
	"github.com/roach88/foxmirror/internal/script"
)

// filterFlags are the row-selection flags shared by list and the edit commands.
type filterFlags struct {
	Where    []string
	Contains []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.Where, "where", nil, "field=value equality filter (repeatable; value null matches NULL)")
	cmd.Flags().StringArrayVar(&f.Contains, "contains", nil, "field=text case-insensitive substring filter (repeatable)")
}

// filter converts the flags into a script filter.
func (f *filterFlags) filter() (script.Filter, error) {
	where, err := parsePairs("--where", f.Where)
	if err != nil {
		return script.Filter{}, err
	}
	out := script.Filter{Where: where}
	if len(f.Contains) > 0 {
		out.Contains = make(map[string]string, len(f.Contains))
		for _, pair := range f.Contains {
			field, text, ok := strings.Cut(pair, "=")
			if !ok || field == "" {
				return script.Filter{}, fmt.Errorf("--contains %q: expected field=text", pair)
			}
			out.Contains[field] = text
		}
	}
	return out, nil
}

// predicate converts the flags into a query predicate.
func (f *filterFlags) predicate() (queryir.Predicate, error) {
	filter, err := f.filter()
	if err != nil {
		return nil, err
	}
	return filter.Predicate()
}

// parsePairs parses field=value arguments. Values are read with ir.Parse and
// returned as plain Go scalars so they can travel through a script.Filter.
func parsePairs(flag string, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%s %q: expected field=value", flag, pair)
		}
		if _, dup := out[field]; dup {
			return nil, fmt.Errorf("%s: field %q given twice", flag, field)
		}
		out[field] = scalar(ir.Parse(raw))
	}
	return out, nil
}

func scalar(v ir.Value) any {
	switch x := v.(type) {
	case ir.Int:
		return int64(x)
	case ir.Real:
		return float64(x)
	case ir.String:
		return string(x)
	default:
		return nil
	}
}
