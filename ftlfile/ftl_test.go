package ftlfile

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sample = `# Entity names
## Section

greeting = Hello, { $name }!
    .title = Welcome

-brand = Space Station

items = { $count ->
    [one] One item
   *[other] { $count } items
}

multi =
    First line
    second line

ent-Crowbar = crowbar
    .desc = A { -brand } tool. Use { "{" } carefully.
`

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{name: "sample", src: sample},
		{name: "empty", src: ""},
		{name: "no trailing newline", src: "key = value"},
		{name: "crlf", src: "a = Hello\r\nb = { $x } World\r\n    .attr = Attr\r\n"},
		{name: "bom", src: "\ufeffkey = value\n"},
		{name: "blank lines in pattern", src: "key =\n    one\n\n    two\n\nnext = x\n"},
		{name: "trailing spaces", src: "key = value   \n   \n"},
		{name: "attributes only", src: "key =\n    .a = A\n    .b = B\n"},
		{name: "junk", src: "key\nvalid = ok\n  stray\n= bad\n"},
		{name: "nested placeables", src: "k = { { \"}\" } } and { FUNC($x, a: \"b\") }\n"},
		{name: "block placeable", src: "k =\n    text\n{ $x }\n    more\n"},
		{name: "select in attribute", src: "k = v\n    .a = { $n ->\n       *[x]\n            deep\n            lines\n    }\n"},
		{name: "comment without space", src: "#bad\nk = v\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Parse([]byte(tc.src))
			if err != nil {
				t.Fatal(err)
			}
			if got := string(res.Marshal()); got != tc.src {
				t.Fatalf("round-trip failed:\ngot:  %q\nwant: %q", got, tc.src)
			}
		})
	}
}

func TestParse_Entries(t *testing.T) {
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, m := range res.Messages() {
		ids = append(ids, m.ID)
	}
	want := []string{"greeting", "items", "multi", "ent-Crowbar"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("Messages() = %v, want %v", ids, want)
	}

	var terms, comments int
	for _, e := range res.Entries {
		switch e := e.(type) {
		case *Term:
			terms++
			if e.ID != "brand" {
				t.Errorf("term id = %q, want %q", e.ID, "brand")
			}
		case *Comment:
			comments++
		}
	}
	if terms != 1 || comments != 2 {
		t.Errorf("terms = %d, comments = %d, want 1 and 2", terms, comments)
	}
	if errs := res.Errors(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestParse_TextAndPlaceables(t *testing.T) {
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := res.Message("greeting")
	if !ok {
		t.Fatal("greeting not found")
	}
	els := m.Value.Elements
	if len(els) != 3 {
		t.Fatalf("len(Elements) = %d, want 3", len(els))
	}
	if txt, ok := els[0].(*Text); !ok || txt.Value != "Hello, " {
		t.Errorf("Elements[0] = %#v, want Text %q", els[0], "Hello, ")
	}
	if pl, ok := els[1].(*Placeable); !ok || pl.Source() != "{ $name }" || pl.Select != nil {
		t.Errorf("Elements[1] = %#v, want placeable { $name }", els[1])
	}
	if txt, ok := els[2].(*Text); !ok || txt.Value != "!" {
		t.Errorf("Elements[2] = %#v, want Text %q", els[2], "!")
	}

	attr, ok := m.Attribute("title")
	if !ok {
		t.Fatal("attribute title not found")
	}
	if got := attr.Value.String(); got != "Welcome" {
		t.Errorf("title = %q, want %q", got, "Welcome")
	}
}

func TestParse_SelectExpression(t *testing.T) {
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("items")
	pl, ok := m.Value.Elements[0].(*Placeable)
	if !ok || pl.Select == nil {
		t.Fatalf("expected select placeable, got %#v", m.Value.Elements[0])
	}
	sel := pl.Select
	if sel.Selector != "$count" {
		t.Errorf("Selector = %q, want %q", sel.Selector, "$count")
	}
	if len(sel.Variants) != 2 {
		t.Fatalf("len(Variants) = %d, want 2", len(sel.Variants))
	}
	one, other := sel.Variants[0], sel.Variants[1]
	if one.Key != "one" || one.Default {
		t.Errorf("Variants[0] = %q default=%v", one.Key, one.Default)
	}
	if other.Key != "other" || !other.Default {
		t.Errorf("Variants[1] = %q default=%v", other.Key, other.Default)
	}
	if got := one.Value.String(); got != "One item" {
		t.Errorf("one = %q, want %q", got, "One item")
	}
	if txt, ok := other.Value.Elements[1].(*Text); !ok || txt.Value != " items" {
		t.Errorf("other text = %#v, want %q", other.Value.Elements[1], " items")
	}
}

func TestParse_MultilineDedent(t *testing.T) {
	res, err := Parse([]byte("key =\n    one\n      two\n\n    three\n"))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("key")
	txt := m.Value.Elements[0].(*Text)
	if want := "one\n  two\n\nthree"; txt.Value != want {
		t.Fatalf("Value = %q, want %q", txt.Value, want)
	}
}

func TestParse_Junk(t *testing.T) {
	res, err := Parse([]byte("key\nvalid = ok\n"))
	if err != nil {
		t.Fatal(err)
	}
	errs := res.Errors()
	if len(errs) != 1 {
		t.Fatalf("len(Errors()) = %d, want 1", len(errs))
	}
	if errs[0].Line != 1 || errs[0].Column != 4 {
		t.Errorf("error at %d:%d, want 1:4", errs[0].Line, errs[0].Column)
	}
	if _, ok := res.Message("valid"); !ok {
		t.Error("message after junk was not parsed")
	}
	junk, ok := res.Entries[0].(*Junk)
	if !ok || junk.Content != "key\n" {
		t.Errorf("Entries[0] = %#v, want junk %q", res.Entries[0], "key\n")
	}
}

func TestParse_SelectWithoutDefault(t *testing.T) {
	res, err := Parse([]byte("k = { $n ->\n    [one] x\n}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages()) != 0 || len(res.Errors()) != 1 {
		t.Fatalf("messages = %d, errors = %d, want 0 and 1", len(res.Messages()), len(res.Errors()))
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	if _, err := Parse([]byte("key = \xff\n")); err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
}

func TestMarshal_ModifiedText(t *testing.T) {
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("greeting")
	m.Value.Elements[0].(*Text).Value = "Привет, "
	attr, _ := m.Attribute("title")
	attr.Value.Elements[0].(*Text).Value = "Добро пожаловать"

	want := strings.Replace(sample, "Hello, { $name }!\n    .title = Welcome", "Привет, { $name }!\n    .title = Добро пожаловать", 1)
	if got := string(res.Marshal()); got != want {
		t.Fatalf("Marshal() =\n%s\nwant:\n%s", got, want)
	}
}

func TestMarshal_ModifiedMultiline(t *testing.T) {
	res, err := Parse([]byte("multi =\n    First line\n    second line\nnext = x\n"))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("multi")
	m.Value.Elements[0].(*Text).Value = "Первая\nвторая"

	want := "multi =\n    Первая\n    вторая\nnext = x\n"
	if got := string(res.Marshal()); got != want {
		t.Fatalf("Marshal() = %q, want %q", got, want)
	}
}

func TestMarshal_NewLinesInInlinePattern(t *testing.T) {
	res, err := Parse([]byte("a = one\r\nb = two\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("a")
	m.Value.Elements[0].(*Text).Value = "x\ny"

	want := "a = x\r\n    y\r\nb = two\r\n"
	out := res.Marshal()
	if string(out) != want {
		t.Fatalf("Marshal() = %q, want %q", out, want)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	m, _ = again.Message("a")
	if got := m.Value.Elements[0].(*Text).Value; got != "x\ny" {
		t.Errorf("re-parsed Value = %q, want %q", got, "x\ny")
	}
}

func TestMarshal_EscapesSyntax(t *testing.T) {
	res, err := Parse([]byte("key =\n    text\n"))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("key")
	m.Value.Elements[0].(*Text).Value = "[a] {b}\n*c"

	want := "key =\n    { \"[\" }a] { \"{\" }b{ \"}\" }\n    { \"*\" }c\n"
	out := res.Marshal()
	if string(out) != want {
		t.Fatalf("Marshal() = %q, want %q", out, want)
	}
	again, err := Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Errors()) != 0 || len(again.Messages()) != 1 {
		t.Fatalf("re-parse: errors = %v, messages = %d", again.Errors(), len(again.Messages()))
	}
}

func TestMarshal_UnchangedWhenValueRestored(t *testing.T) {
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	m, _ := res.Message("multi")
	txt := m.Value.Elements[0].(*Text)
	orig := txt.Value
	txt.Value = "changed"
	txt.Value = orig
	if txt.Modified() {
		t.Error("Modified() = true after restoring the value")
	}
	if got := string(res.Marshal()); got != sample {
		t.Fatalf("Marshal() changed output:\n%s", got)
	}
}

func TestWriteFileAndParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "en.ftl")
	res, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := res.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	back, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(back.Marshal()) != sample {
		t.Error("file round-trip changed content")
	}
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.ftl", "a/x.ftl", "a/y.txt", "a/z/deep.ftl"} {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("k = v\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := FindFiles(root, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(root, "a", "x.ftl"),
		filepath.Join(root, "a", "z", "deep.ftl"),
		filepath.Join(root, "b.ftl"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FindFiles() = %v, want %v", got, want)
	}

	if _, err := FindFiles(filepath.Join(root, "missing"), Ext); err == nil {
		t.Error("expected error for missing root")
	}
}
