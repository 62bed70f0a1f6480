package node

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/value"
)

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramFloat(params map[string]any, key string) (*float64, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", key, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("param %q has unsupported numeric type %T", key, v)
	}
}

func paramBool(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func paramStringSlice(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func paramStringMap(params map[string]any, key string) map[string]string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// regexRuleList decodes warn_if_match/warn_unless_match entries, each of
// the shape {pattern, message, fix_hook?}.
func regexRuleList(params map[string]any, key string, unless bool, hooks *HookRegistry) ([]value.RegexRule, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be a list of rule maps", key)
	}
	out := make([]value.RegexRule, 0, len(items))
	for _, item := range items {
		pattern, _ := paramString(item, "pattern")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("param %q pattern %q: %w", key, pattern, err)
		}
		rule := value.RegexRule{
			Label:   itemLabel(item, pattern),
			Pattern: re,
			Unless:  unless,
		}
		rule.Message, _ = paramString(item, "message")
		if hook, ok := paramString(item, "fix_hook"); ok && hooks != nil {
			rule.Fix = hooks.Fixes[hook]
		}
		out = append(out, rule)
	}
	return out, nil
}

func assertRuleList(params map[string]any, key string, unless bool, hooks *HookRegistry) ([]value.AssertRule, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be a list of rule maps", key)
	}
	out := make([]value.AssertRule, 0, len(items))
	for _, item := range items {
		label, _ := paramString(item, "label")
		hookName, _ := paramString(item, "hook")
		var code value.AssertFunc
		if hooks != nil {
			code = hooks.Asserts[hookName]
		}
		if code == nil {
			return nil, fmt.Errorf("param %q entry %q: no registered hook %q", key, label, hookName)
		}
		rule := value.AssertRule{Label: label, Code: code, Unless: unless}
		rule.Message, _ = paramString(item, "message")
		if fixHook, ok := paramString(item, "fix_hook"); ok && hooks != nil {
			rule.Fix = hooks.Fixes[fixHook]
		}
		out = append(out, rule)
	}
	return out, nil
}

func itemLabel(item map[string]any, fallback string) string {
	if l, ok := paramString(item, "label"); ok {
		return l
	}
	return fallback
}

// compileValueSpec turns a catalog element's declarative ValueParams into a
// *value.Spec, resolving any named hooks through hooks and wiring resolver
// for refer_to/replace_follow/compute lookups against the live tree.
func compileValueSpec(el *api.Element, hooks *HookRegistry, resolver value.Resolver) (*value.Spec, error) {
	params := el.ValueParams
	typeName, _ := paramString(params, "type")
	kind, err := value.ParseKind(typeName)
	if err != nil {
		return nil, err
	}

	spec := &value.Spec{Type: kind, Resolver: resolver}

	if spec.Min, err = paramFloat(params, "min"); err != nil {
		return nil, err
	}
	if spec.Max, err = paramFloat(params, "max"); err != nil {
		return nil, err
	}
	spec.Choice = paramStringSlice(params, "choice")
	spec.Mandatory = paramBool(params, "mandatory")
	spec.Convert, _ = paramString(params, "convert")
	spec.Warn, _ = paramString(params, "warn")
	spec.Replace = paramStringMap(params, "replace")
	spec.ReplaceFollowPath, _ = paramString(params, "replace_follow")

	if def, ok := paramString(params, "default"); ok {
		spec.Default = &def
	}
	if up, ok := paramString(params, "upstream_default"); ok {
		spec.Upstream = &up
	}

	if wa := paramStringSlice(params, "write_as"); len(wa) == 2 {
		spec.HasWriteAs = true
		spec.WriteAs = [2]string{wa[0], wa[1]}
	}

	if pattern, ok := paramString(params, "match"); ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("element %q match: %w", el.Name, err)
		}
		spec.Match = re
	}

	if grammarRaw, ok := params["grammar"]; ok {
		productions, _ := grammarRaw.(map[string]any)
		root, _ := paramString(params, "grammar_root")
		if root == "" {
			root = "root"
		}
		prods := make(map[string]string, len(productions))
		for k, v := range productions {
			if s, ok := v.(string); ok {
				prods[k] = s
			}
		}
		g, err := value.CompileGrammar(prods, root)
		if err != nil {
			return nil, fmt.Errorf("element %q grammar: %w", el.Name, err)
		}
		spec.Grammar = g
	}

	if spec.WarnIfMatch, err = regexRuleList(params, "warn_if_match", false, hooks); err != nil {
		return nil, err
	}
	if extra, err := regexRuleList(params, "warn_unless_match", true, hooks); err != nil {
		return nil, err
	} else {
		spec.WarnIfMatch = append(spec.WarnIfMatch, extra...)
	}

	if spec.Assert, err = assertRuleList(params, "assert", false, hooks); err != nil {
		return nil, err
	}
	if spec.WarnIf, err = assertRuleList(params, "warn_if", false, hooks); err != nil {
		return nil, err
	}
	if extra, err := assertRuleList(params, "warn_unless", true, hooks); err != nil {
		return nil, err
	} else {
		spec.WarnIf = append(spec.WarnIf, extra...)
	}

	if hookName, ok := paramString(params, "compute_hook"); ok && hooks != nil {
		spec.Compute = hooks.Computes[hookName]
	}
	if hookName, ok := paramString(params, "migrate_from_hook"); ok && hooks != nil {
		spec.MigrateFrom = hooks.Computes[hookName]
	}

	if referPath, ok := paramString(params, "refer_to"); ok {
		spec.Refer = &value.ReferSpec{Path: referPath}
	} else if referPath, ok := paramString(params, "computed_refer_to"); ok {
		spec.Refer = &value.ReferSpec{Path: referPath, Computed: true}
	}

	if help, ok := params["help"].([]map[string]any); ok {
		for _, item := range help {
			pattern, _ := paramString(item, "pattern")
			text, _ := paramString(item, "text")
			var re *regexp.Regexp
			if pattern != "" && pattern != "." && pattern != ".*" {
				re, err = regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("element %q help pattern %q: %w", el.Name, pattern, err)
				}
			}
			spec.Help = append(spec.Help, value.HelpEntry{Pattern: re, Raw: pattern, Text: text})
		}
	}

	return spec, nil
}
