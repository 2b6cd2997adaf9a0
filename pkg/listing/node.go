package listing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ysmood/gson"
)

// node is an optional position in a decoded JSON tree. Lookups through a
// missing key, a non-object or a null yield an absent node instead of
// failing, so chains like n.get("a").get("b", 0) never need guarding.
type node struct {
	j  gson.JSON
	ok bool
}

func newNode(v interface{}) node {
	j := gson.New(v)
	return node{j: j, ok: !j.Nil()}
}

// get walks keys (strings for objects, ints for arrays) from n.
func (n node) get(keys ...interface{}) node {
	if !n.ok {
		return n
	}
	j, has := n.j.Gets(keys...)
	return node{j: j, ok: has && !j.Nil()}
}

// present reports whether n holds a non-null value.
func (n node) present() bool {
	return n.ok
}

func (n node) isObject() bool {
	if !n.ok {
		return false
	}
	_, ok := n.j.Val().(map[string]interface{})
	return ok
}

func (n node) isArray() bool {
	if !n.ok {
		return false
	}
	_, ok := n.j.Val().([]interface{})
	return ok
}

func (n node) isString() bool {
	if !n.ok {
		return false
	}
	_, ok := n.j.Val().(string)
	return ok
}

// items returns the elements of an array node, or nil.
func (n node) items() []node {
	if !n.isArray() {
		return nil
	}
	arr := n.j.Arr()
	out := make([]node, len(arr))
	for i, el := range arr {
		out[i] = node{j: el, ok: !el.Nil()}
	}
	return out
}

// scalar renders strings, numbers and booleans the way they appear in the
// payload. Objects, arrays, null and absent nodes render as "".
func (n node) scalar() string {
	if !n.ok {
		return ""
	}
	switch v := n.j.Val().(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// count reads a non-negative integer from a number or numeric string.
// Anything else is 0.
func (n node) count() int {
	s := strings.TrimSpace(n.scalar())
	if s == "" {
		return 0
	}
	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 {
			return 0
		}
		return i
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsNaN(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// display unwraps a {id, text}-shaped value: the first non-empty of keys for
// objects, the value itself for scalars.
func (n node) display(keys ...string) string {
	if n.isObject() {
		for _, k := range keys {
			if s := n.get(k).scalar(); s != "" {
				return s
			}
		}
		return ""
	}
	return n.scalar()
}
