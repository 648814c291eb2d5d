package shim

// builtins returns the fixed shim set. Sources lean on the bundle
// runtime globals (__jsx, __fragment, the __use* hook primitives) that
// the linker prelude always provides.
func builtins() []*Module {
	react := &Module{
		Name: "react",
		ID:   "shim:react",
		Exports: []string{
			"default", "createElement", "Fragment", "useState", "useEffect",
			"useMemo", "useCallback", "useRef", "useContext", "createContext",
		},
		Source: reactSource,
	}
	reactDOM := &Module{
		Name:    "react-dom",
		ID:      "shim:react-dom",
		Exports: []string{"default", "render"},
		Source:  reactDOMSource,
	}
	reactNative := &Module{
		Name: "react-native",
		ID:   "shim:react-native",
		Exports: []string{
			"default", "View", "Text", "ScrollView", "TextInput", "Image",
			"TouchableOpacity", "Pressable", "Button", "FlatList",
			"ActivityIndicator", "SafeAreaView", "KeyboardAvoidingView",
			"StatusBar", "StyleSheet", "Platform", "Dimensions", "Alert",
			"useWindowDimensions",
		},
		Source: reactNativeSource,
	}
	expoStatusBar := &Module{
		Name:    "expo-status-bar",
		ID:      "shim:expo-status-bar",
		Exports: []string{"StatusBar"},
		Source:  expoStatusBarSource,
	}
	safeArea := &Module{
		Name: "react-native-safe-area-context",
		ID:   "shim:react-native-safe-area-context",
		Exports: []string{
			"default", "SafeAreaProvider", "SafeAreaView", "useSafeAreaInsets",
		},
		Deps:   map[string]string{"react-native": "shim:react-native"},
		Source: safeAreaSource,
	}
	vectorIcons := &Module{
		Name: "@expo/vector-icons",
		ID:   "shim:@expo/vector-icons",
		Exports: []string{
			"Ionicons", "MaterialIcons", "MaterialCommunityIcons",
			"FontAwesome", "Feather", "AntDesign", "Entypo",
		},
		Source: vectorIconsSource,
	}
	return []*Module{react, reactDOM, reactNative, expoStatusBar, safeArea, vectorIcons}
}

const reactSource = `
var React = {
  createElement: __jsx,
  Fragment: __fragment,
  useState: __useState,
  useEffect: __useEffect,
  useMemo: __useMemo,
  useCallback: __useCallback,
  useRef: __useRef,
  useContext: __useContext,
  createContext: __createContext
};
__exp.default = React;
__exp.createElement = __jsx;
__exp.Fragment = __fragment;
__exp.useState = __useState;
__exp.useEffect = __useEffect;
__exp.useMemo = __useMemo;
__exp.useCallback = __useCallback;
__exp.useRef = __useRef;
__exp.useContext = __useContext;
__exp.createContext = __createContext;
`

const reactDOMSource = `
function render(element, container) {
  container.innerHTML = "";
  __append(container, element);
}
__exp.render = render;
__exp.default = { render: render };
`

const reactNativeSource = `
function __flat(style) {
  if (!style) return {};
  if (Array.isArray(style)) {
    var out = {};
    for (var i = 0; i < style.length; i++) Object.assign(out, __flat(style[i]));
    return out;
  }
  return style;
}

function __el(tag, props, base) {
  props = props || {};
  var dom = { style: Object.assign({}, base, __flat(props.style)) };
  if (props.onPress) dom.onClick = props.onPress;
  if (props.onLongPress) dom.onContextMenu = props.onLongPress;
  if (props.testID) dom.id = props.testID;
  if (props.accessibilityLabel) dom["aria-label"] = props.accessibilityLabel;
  return __jsx(tag, dom, props.children);
}

function View(props) {
  return __el("div", props, { display: "flex", flexDirection: "column" });
}
function Text(props) {
  return __el("span", props, {});
}
function ScrollView(props) {
  return __el("div", props, { display: "flex", flexDirection: "column", overflowY: "auto" });
}
function TextInput(props) {
  props = props || {};
  var dom = {
    style: Object.assign({ border: "1px solid #ccc", padding: "8px" }, __flat(props.style)),
    placeholder: props.placeholder || "",
  };
  if (props.value !== undefined) dom.value = props.value;
  if (props.secureTextEntry) dom.type = "password";
  if (props.onChangeText) {
    dom.onInput = function (e) { props.onChangeText(e.target.value); };
  }
  return __jsx("input", dom);
}
function Image(props) {
  props = props || {};
  var src = props.source && (props.source.uri || props.source);
  return __jsx("img", {
    src: typeof src === "string" ? src : "",
    style: __flat(props.style)
  });
}
function TouchableOpacity(props) {
  return __el("div", props, { display: "flex", flexDirection: "column", cursor: "pointer" });
}
var Pressable = TouchableOpacity;
function Button(props) {
  props = props || {};
  return __jsx("button", { onClick: props.onPress, style: { padding: "8px 16px" } }, props.title || "");
}
function FlatList(props) {
  props = props || {};
  var data = props.data || [];
  var rows = [];
  for (var i = 0; i < data.length; i++) {
    rows.push(props.renderItem ? props.renderItem({ item: data[i], index: i }) : null);
  }
  return __jsx("div", {
    style: Object.assign({ display: "flex", flexDirection: "column", overflowY: "auto" }, __flat(props.style))
  }, rows);
}
function ActivityIndicator(props) {
  return __jsx("span", { style: __flat(props && props.style) }, "⏳");
}
var SafeAreaView = View;
var KeyboardAvoidingView = View;
function StatusBar() { return null; }

var StyleSheet = {
  create: function (styles) { return styles; },
  flatten: __flat,
  hairlineWidth: 1,
  absoluteFill: { position: "absolute", top: 0, left: 0, right: 0, bottom: 0 }
};
var Platform = {
  OS: "web",
  select: function (spec) { return "web" in spec ? spec.web : spec["default"]; }
};
var Dimensions = {
  get: function () { return { width: window.innerWidth, height: window.innerHeight, scale: 1, fontScale: 1 }; }
};
function useWindowDimensions() { return Dimensions.get(); }
var Alert = {
  alert: function (title, message) { window.alert(message ? title + "\n" + message : title); }
};

__exp.View = View;
__exp.Text = Text;
__exp.ScrollView = ScrollView;
__exp.TextInput = TextInput;
__exp.Image = Image;
__exp.TouchableOpacity = TouchableOpacity;
__exp.Pressable = Pressable;
__exp.Button = Button;
__exp.FlatList = FlatList;
__exp.ActivityIndicator = ActivityIndicator;
__exp.SafeAreaView = SafeAreaView;
__exp.KeyboardAvoidingView = KeyboardAvoidingView;
__exp.StatusBar = StatusBar;
__exp.StyleSheet = StyleSheet;
__exp.Platform = Platform;
__exp.Dimensions = Dimensions;
__exp.Alert = Alert;
__exp.useWindowDimensions = useWindowDimensions;
__exp.default = {
  View: View, Text: Text, ScrollView: ScrollView, TextInput: TextInput,
  Image: Image, TouchableOpacity: TouchableOpacity, Pressable: Pressable,
  Button: Button, FlatList: FlatList, ActivityIndicator: ActivityIndicator,
  SafeAreaView: SafeAreaView, KeyboardAvoidingView: KeyboardAvoidingView,
  StatusBar: StatusBar, StyleSheet: StyleSheet, Platform: Platform,
  Dimensions: Dimensions, Alert: Alert, useWindowDimensions: useWindowDimensions
};
`

const expoStatusBarSource = `
__exp.StatusBar = function () { return null; };
`

const safeAreaSource = `
var RN = __req("react-native");
__exp.SafeAreaProvider = RN.View;
__exp.SafeAreaView = RN.View;
__exp.useSafeAreaInsets = function () { return { top: 0, right: 0, bottom: 0, left: 0 }; };
__exp.default = {
  SafeAreaProvider: __exp.SafeAreaProvider,
  SafeAreaView: __exp.SafeAreaView,
  useSafeAreaInsets: __exp.useSafeAreaInsets
};
`

const vectorIconsSource = `
function makeIconSet(family) {
  return function (props) {
    props = props || {};
    var size = props.size || 24;
    return __jsx("span", {
      "aria-label": family + ":" + (props.name || ""),
      style: { fontSize: size + "px", color: props.color || "inherit", lineHeight: 1 }
    }, "◆");
  };
}
__exp.Ionicons = makeIconSet("ionicons");
__exp.MaterialIcons = makeIconSet("material");
__exp.MaterialCommunityIcons = makeIconSet("material-community");
__exp.FontAwesome = makeIconSet("fontawesome");
__exp.Feather = makeIconSet("feather");
__exp.AntDesign = makeIconSet("antdesign");
__exp.Entypo = makeIconSet("entypo");
`
