package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
)

func TestBuiltin_Protocols(t *testing.T) {
	catalog, err := curriculum.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}

	tests := []struct {
		protocol string
		subjects int
	}{
		{"GATE", 9},
		{"PLACEMENT", 4},
		{"INTERVIEW", 3},
	}
	for _, tt := range tests {
		t.Run(tt.protocol, func(t *testing.T) {
			if got := len(catalog.Subjects(tt.protocol)); got != tt.subjects {
				t.Errorf("len(Subjects(%s)) = %d, want %d", tt.protocol, got, tt.subjects)
			}
		})
	}
}

func TestBuiltin_TopicIDsDerivedFromPosition(t *testing.T) {
	catalog, err := curriculum.Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}

	g1 := catalog.Subjects("GATE")[0]
	if g1.ID != "g1" {
		t.Fatalf("first GATE subject = %q, want g1", g1.ID)
	}
	want := []curriculum.Topic{
		{ID: "g1_t0", Title: "Linear Algebra"},
		{ID: "g1_t1", Title: "Calculus"},
		{ID: "g1_t2", Title: "Probability"},
		{ID: "g1_t3", Title: "Discrete Mathematics"},
	}
	if len(g1.Topics) != len(want) {
		t.Fatalf("len(Topics) = %d, want %d", len(g1.Topics), len(want))
	}
	for i, topic := range g1.Topics {
		if topic != want[i] {
			t.Errorf("Topics[%d] = %+v, want %+v", i, topic, want[i])
		}
	}
}

func TestParse_MixedTopicForms(t *testing.T) {
	doc, err := curriculum.Parse([]byte(`
protocol: upsc
subjects:
  - id: u1
    name: Polity
    topics:
      - Constitution
      - id: u1_fr
        title: Fundamental Rights
      - id: u1_dp
        name: Directive Principles
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if doc.Protocol != "UPSC" {
		t.Errorf("Protocol = %q, want UPSC", doc.Protocol)
	}
	got := doc.Subjects[0].Normalize()
	want := []curriculum.Topic{
		{ID: "u1_t0", Title: "Constitution"},
		{ID: "u1_fr", Title: "Fundamental Rights"},
		{ID: "u1_dp", Title: "Directive Principles"},
	}
	for i, topic := range got.Topics {
		if topic != want[i] {
			t.Errorf("Topics[%d] = %+v, want %+v", i, topic, want[i])
		}
	}
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing protocol", "subjects: []"},
		{"subject without id", "protocol: X\nsubjects:\n  - name: A\n    topics: []"},
		{"topic without title", "protocol: X\nsubjects:\n  - id: a\n    name: A\n    topics:\n      - id: t1"},
		{"topic is a list", "protocol: X\nsubjects:\n  - id: a\n    name: A\n    topics:\n      - [a, b]"},
		{"not yaml", "protocol: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := curriculum.Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() should return error")
			}
		})
	}
}

func TestLoad_ExtendsBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "upsc.yaml"), `
protocol: UPSC
subjects:
  - id: u1
    name: Polity
    topics: [Constitution, Parliament]
`)
	writeFile(t, filepath.Join(dir, "gate-extra.yaml"), `
protocol: gate
subjects:
  - id: g10
    name: General Aptitude
    topics: [Verbal Ability]
  - id: g1
    name: Duplicate Of Builtin
    topics: [Ignored]
`)

	catalog, err := curriculum.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := len(catalog.Subjects("UPSC")); got != 1 {
		t.Errorf("len(Subjects(UPSC)) = %d, want 1", got)
	}
	gate := catalog.Subjects("GATE")
	if len(gate) != 10 {
		t.Fatalf("len(Subjects(GATE)) = %d, want 10", len(gate))
	}
	if gate[9].ID != "g10" {
		t.Errorf("last GATE subject = %q, want g10", gate[9].ID)
	}
	if gate[0].Name != "Engineering Mathematics" {
		t.Errorf("g1 name = %q, builtin subject should not be replaced", gate[0].Name)
	}
}

func TestLoad_SubjectIDsUniqueAcrossProtocols(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "upsc.yaml"), `
protocol: UPSC
subjects:
  - id: g1
    name: Polity
    topics: [Constitution]
  - id: custom_42
    name: Reserved
    topics: [Anything]
  - id: u2
    name: Economy
    topics: [Budget]
`)

	catalog, err := curriculum.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	upsc := catalog.Subjects("UPSC")
	if len(upsc) != 1 {
		t.Fatalf("len(Subjects(UPSC)) = %d, want 1", len(upsc))
	}
	if upsc[0].ID != "u2" {
		t.Errorf("UPSC subject = %q, want u2", upsc[0].ID)
	}
	if got := catalog.Subjects("GATE")[0].Name; got != "Engineering Mathematics" {
		t.Errorf("g1 name = %q, want Engineering Mathematics", got)
	}
}

func TestLoad_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "protocol: X\nsubjects: nope")
	writeFile(t, filepath.Join(dir, "notes.md"), "# not a catalog")

	catalog, err := curriculum.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := catalog["X"]; ok {
		t.Error("invalid catalog file should be skipped")
	}
	if len(catalog.Protocols()) != 3 {
		t.Errorf("Protocols() = %v, want only builtin protocols", catalog.Protocols())
	}
}

func TestLoad_MissingDir(t *testing.T) {
	catalog, err := curriculum.Load(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(catalog.Subjects("GATE")) == 0 {
		t.Error("missing directory should fall back to builtin catalog")
	}
}

func TestProtocolName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  upsc ", "UPSC"},
		{"Gate", "GATE"},
		{"élan", "ÉLAN"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := curriculum.ProtocolName(tt.in); got != tt.want {
			t.Errorf("ProtocolName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
