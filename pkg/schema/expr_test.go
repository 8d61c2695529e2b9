package schema

import (
	"errors"
	"testing"
)

type fakeScope struct {
	fields  map[string]int64
	version uint32
	userVer uint32
	arg     *int64
}

func (s fakeScope) FieldValue(name string) (int64, bool) {
	v, ok := s.fields[name]
	return v, ok
}

func (s fakeScope) Version() uint32     { return s.version }
func (s fakeScope) UserVersion() uint32 { return s.userVer }

func (s fakeScope) Arg() (int64, bool) {
	if s.arg == nil {
		return 0, false
	}
	return *s.arg, true
}

func TestExprEval(t *testing.T) {
	t.Parallel()

	scope := fakeScope{
		fields:  map[string]int64{"num_vertices": 6, "has_normals": 1, "strip_count": 0},
		version: 0x04000002,
		userVer: 11,
	}
	cases := []struct {
		src  string
		want int64
	}{
		{"1", 1},
		{"0x10", 16},
		{"num_vertices", 6},
		{"num_vertices * 3", 18},
		{"num_vertices + 2 * 3", 12},
		{"(num_vertices + 2) * 3", 24},
		{"num_vertices != 0", 1},
		{"strip_count != 0", 0},
		{"has_normals && num_vertices > 0", 1},
		{"strip_count != 0 || has_normals", 1},
		{"!has_normals", 0},
		{"version >= 4.0.0.2", 1},
		{"version > 4.0.0.2", 0},
		{"user_version == 11", 1},
		{"num_vertices / 2", 3},
		{"num_vertices % 4", 2},
		{"-2 + 3", 1},
	}
	for _, tc := range cases {
		e, err := Compile(tc.src, nil)
		if err != nil {
			t.Fatalf("Compile(%q): %v", tc.src, err)
		}
		got, err := e.Eval(scope)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.src, err)
		}
		if got != tc.want {
			t.Fatalf("Eval(%q) = %d, want %d", tc.src, got, tc.want)
		}
	}
}

func TestExprNamedConstants(t *testing.T) {
	t.Parallel()

	consts := map[string]uint64{"V4": 0x04000002, "fmt_rgba": 4}
	e, err := Compile("version <= V4 && pixel_format == fmt_rgba", consts)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := e.Eval(fakeScope{
		fields:  map[string]int64{"pixel_format": 4},
		version: 0x04000002,
	})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	// Constants resolve at compile time and must not show up as field refs.
	if refs := e.FieldRefs(); len(refs) != 1 || refs[0] != "pixel_format" {
		t.Fatalf("field refs: %v", refs)
	}
}

func TestExprErrors(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"", "1 +", "(1", "1 ~ 2", "foo bar"} {
		if _, err := Compile(src, nil); err == nil {
			t.Fatalf("Compile(%q) should fail", src)
		}
	}

	e, err := Compile("missing + 1", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var exprErr *ExprError
	if _, err := e.Eval(fakeScope{}); !errors.As(err, &exprErr) {
		t.Fatalf("missing field should raise ExprError, got %v", err)
	}

	e, err = Compile("10 / zero", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := e.Eval(fakeScope{fields: map[string]int64{"zero": 0}}); !errors.As(err, &exprErr) {
		t.Fatalf("division by zero should raise ExprError, got %v", err)
	}
}

func TestExprShortCircuit(t *testing.T) {
	t.Parallel()

	// The right side references a missing field; short-circuiting must
	// keep it from being evaluated.
	e, err := Compile("0 && missing", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got, err := e.Eval(fakeScope{}); err != nil || got != 0 {
		t.Fatalf("short circuit &&: %d %v", got, err)
	}
	e, err = Compile("1 || missing", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got, err := e.Eval(fakeScope{}); err != nil || got != 1 {
		t.Fatalf("short circuit ||: %d %v", got, err)
	}
}

func TestExprArgBinding(t *testing.T) {
	t.Parallel()

	e, err := Compile("arg * 2", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	arg := int64(21)
	if got, err := e.Eval(fakeScope{arg: &arg}); err != nil || got != 42 {
		t.Fatalf("arg eval: %d %v", got, err)
	}
	var exprErr *ExprError
	if _, err := e.Eval(fakeScope{}); !errors.As(err, &exprErr) {
		t.Fatalf("unbound arg should raise ExprError, got %v", err)
	}
}
