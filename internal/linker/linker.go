// Package linker assembles transformed modules into one self-contained
// script: a runtime prelude, a __d registration per module in
// dependencies-first order, and an epilogue that executes the entry and
// mounts its default export. Output is byte-identical for identical
// input graphs.
package linker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"previewkit/internal/graph"
	"previewkit/internal/logging"
)

// Link renders the executable bundle for a built graph.
func Link(g *graph.DependencyGraph) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("\"use strict\";\n")
	buf.WriteString(prelude)

	for _, id := range g.Order {
		rec, ok := g.Modules[id]
		if !ok {
			return "", fmt.Errorf("link: module %q in order but not in graph", id)
		}
		deps, err := json.Marshal(rec.ResolvedImports)
		if err != nil {
			return "", fmt.Errorf("link %s: %w", id, err)
		}
		buf.WriteString("__d(")
		buf.WriteString(strconv.Quote(rec.ID))
		buf.WriteString(", ")
		buf.Write(deps)
		buf.WriteString(", function (__req, __exp, __mod) {\n")
		buf.WriteString(rec.Body)
		if len(rec.Body) > 0 && rec.Body[len(rec.Body)-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.WriteString("});\n")
	}

	buf.WriteString("(function () {\n")
	buf.WriteString("  try {\n")
	fmt.Fprintf(&buf, "    var entry = __r(%s);\n", strconv.Quote(g.EntryID))
	buf.WriteString("    if (entry && typeof entry.default === \"function\") {\n")
	buf.WriteString("      __mount(entry.default);\n")
	buf.WriteString("    } else if (entry && entry.default) {\n")
	buf.WriteString("      __append(document.getElementById(\"root\"), entry.default);\n")
	buf.WriteString("    }\n")
	buf.WriteString("  } catch (e) {\n")
	buf.WriteString("    __showError(e);\n")
	buf.WriteString("  }\n")
	buf.WriteString("})();\n")

	logging.L(logging.CategoryLink).Debug("linked bundle",
		zap.String("entry", g.EntryID),
		zap.Int("modules", len(g.Order)),
		zap.Int("bytes", buf.Len()))
	return buf.String(), nil
}

// prelude is the bundle runtime. Module execution is lazy and happens
// at most once; the exports object is created before the factory runs,
// so circular imports observe live bindings instead of throwing.
const prelude = `var __modules = Object.create(null);
var __instances = Object.create(null);

function __d(id, deps, factory) {
  __modules[id] = { deps: deps, factory: factory };
}

function __r(id) {
  var inst = __instances[id];
  if (inst) return inst.exports;
  var def = __modules[id];
  if (!def) throw new Error("module not registered: " + id);
  inst = { exports: {} };
  __instances[id] = inst;
  var req = function (spec) {
    var target = def.deps[spec];
    if (target === undefined) throw new Error('unresolved import "' + spec + '" in ' + id);
    return __r(target);
  };
  def.factory(req, inst.exports, { id: id, exports: inst.exports });
  return inst.exports;
}

function __reqStar(target, ns) {
  for (var k in ns) {
    if (k !== "default") target[k] = ns[k];
  }
  return target;
}

var __fragment = { __isFragment: true };

function __jsx(type, props) {
  var children = [];
  for (var i = 2; i < arguments.length; i++) children.push(arguments[i]);
  return { __isElement: true, type: type, props: props || {}, children: children };
}

var __unitless = {
  flex: 1, flexGrow: 1, flexShrink: 1, opacity: 1, zIndex: 1,
  fontWeight: 1, lineHeight: 1
};

function __applyStyle(el, style) {
  for (var k in style) {
    var v = style[k];
    if (typeof v === "number" && !__unitless[k]) v = v + "px";
    el.style[k] = v;
  }
}

function __applyProps(el, props) {
  for (var k in props) {
    var v = props[k];
    if (k === "children" || v === undefined || v === null) continue;
    if (k === "style") {
      __applyStyle(el, v);
    } else if (k.slice(0, 2) === "on" && typeof v === "function") {
      el.addEventListener(k.slice(2).toLowerCase(), v);
    } else if (k === "value") {
      el.value = v;
    } else if (k === "className") {
      el.setAttribute("class", v);
    } else {
      el.setAttribute(k, String(v));
    }
  }
}

function __append(container, node) {
  if (node === null || node === undefined || typeof node === "boolean") return;
  if (typeof node === "string" || typeof node === "number") {
    container.appendChild(document.createTextNode(String(node)));
    return;
  }
  if (Array.isArray(node)) {
    for (var i = 0; i < node.length; i++) __append(container, node[i]);
    return;
  }
  if (!node.__isElement) {
    container.appendChild(document.createTextNode(String(node)));
    return;
  }
  if (node.type === __fragment) {
    __append(container, node.children);
    __append(container, node.props.children);
    return;
  }
  if (typeof node.type === "function") {
    var props = node.props;
    if (node.children.length === 1) props.children = node.children[0];
    else if (node.children.length > 1) props.children = node.children;
    __append(container, node.type(props));
    return;
  }
  var el = document.createElement(node.type);
  __applyProps(el, node.props);
  __append(el, node.props.children);
  __append(el, node.children);
  container.appendChild(el);
}

var __hookState = [];
var __hookCursor = 0;
var __effects = [];
var __cleanups = [];
var __rootApp = null;
var __renderQueued = false;

function __rerender() {
  if (!__rootApp) return;
  __hookCursor = 0;
  __effects = [];
  __rootApp.container.innerHTML = "";
  __append(__rootApp.container, __jsx(__rootApp.component, {}));
  for (var i = 0; i < __effects.length; i++) {
    var e = __effects[i];
    if (__cleanups[e.slot]) __cleanups[e.slot]();
    __cleanups[e.slot] = e.fn() || null;
  }
}

function __schedule() {
  if (__renderQueued) return;
  __renderQueued = true;
  Promise.resolve().then(function () {
    __renderQueued = false;
    try {
      __rerender();
    } catch (e) {
      __showError(e);
    }
  });
}

function __mount(component) {
  var container = document.getElementById("root");
  if (!container) return;
  __rootApp = { component: component, container: container };
  __rerender();
}

function __useState(initial) {
  var slot = __hookCursor++;
  if (!(slot in __hookState)) {
    __hookState[slot] = { value: typeof initial === "function" ? initial() : initial };
  }
  var cell = __hookState[slot];
  var set = function (next) {
    cell.value = typeof next === "function" ? next(cell.value) : next;
    __schedule();
  };
  return [cell.value, set];
}

function __depsChanged(prev, next) {
  if (!prev || !next) return true;
  if (prev.length !== next.length) return true;
  for (var i = 0; i < prev.length; i++) {
    if (prev[i] !== next[i]) return true;
  }
  return false;
}

function __useEffect(fn, deps) {
  var slot = __hookCursor++;
  var cell = __hookState[slot] || (__hookState[slot] = {});
  if (__depsChanged(cell.deps, deps)) {
    cell.deps = deps;
    __effects.push({ slot: slot, fn: fn });
  }
}

function __useMemo(fn, deps) {
  var slot = __hookCursor++;
  var cell = __hookState[slot] || (__hookState[slot] = {});
  if (__depsChanged(cell.deps, deps)) {
    cell.deps = deps;
    cell.value = fn();
  }
  return cell.value;
}

function __useCallback(fn, deps) {
  return __useMemo(function () { return fn; }, deps);
}

function __useRef(initial) {
  var slot = __hookCursor++;
  if (!(slot in __hookState)) __hookState[slot] = { current: initial };
  return __hookState[slot];
}

function __createContext(defaultValue) {
  var ctx = { _value: defaultValue };
  ctx.Provider = function (props) {
    ctx._value = props.value;
    return props.children;
  };
  return ctx;
}

function __useContext(ctx) {
  return ctx._value;
}

function __showError(err) {
  var container = document.getElementById("root") || document.body;
  var pre = document.createElement("pre");
  pre.setAttribute("class", "runtime-error");
  pre.style.color = "#b00020";
  pre.style.padding = "16px";
  pre.style.whiteSpace = "pre-wrap";
  pre.textContent = String(err && err.stack ? err.stack : err);
  container.innerHTML = "";
  container.appendChild(pre);
}
`
