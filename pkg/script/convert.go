package script

import (
	"fmt"

	"go.starlark.net/starlark"
)

// toStarlark converts a Go value to its Starlark counterpart.
func toStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// fromStarlark converts a Starlark value back to Go.
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			gv, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = gv
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			gv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = gv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", v.Type())
	}
}

// dictFromParams converts an optional params dict argument.
func dictFromParams(v starlark.Value) (map[string]any, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	dict, ok := v.(*starlark.Dict)
	if !ok {
		return nil, fmt.Errorf("params must be a dict, got %s", v.Type())
	}
	out, err := fromStarlark(dict)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}
