package profile_test

import (
	"encoding/json"
	"testing"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
	"github.com/p-n-ai/pai-syllabus/internal/profile"
	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

func TestUser_PreservesUnknownFields(t *testing.T) {
	in := `{"id":"u1","name":"Asha","xp":120,"streak":{"days":4},` +
		`"customSyllabus":[{"id":"custom_1","name":"Stats","topics":[],"protocol":"GATE"}],` +
		`"syllabusTracker":{"g1":{"g1_t0":"done"}}}`

	var u profile.User
	if err := json.Unmarshal([]byte(in), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if u.ID != "u1" {
		t.Errorf("ID = %q, want u1", u.ID)
	}
	if len(u.CustomSyllabus) != 1 || u.CustomSyllabus[0].Protocol != "GATE" {
		t.Errorf("CustomSyllabus = %+v", u.CustomSyllabus)
	}
	if u.SyllabusTracker.Status("g1", "g1_t0") != syllabus.StatusDone {
		t.Errorf("SyllabusTracker = %+v", u.SyllabusTracker)
	}

	u.SyllabusTracker = u.SyllabusTracker.With("g1", "g1_t1", syllabus.StatusInProgress)
	out, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("Unmarshal(out) error = %v", err)
	}
	if doc["name"] != "Asha" {
		t.Errorf("name = %v, want Asha", doc["name"])
	}
	if doc["xp"] != float64(120) {
		t.Errorf("xp = %v, want 120", doc["xp"])
	}
	if streak, ok := doc["streak"].(map[string]any); !ok || streak["days"] != float64(4) {
		t.Errorf("streak = %v, want {days:4}", doc["streak"])
	}
	tracker := doc["syllabusTracker"].(map[string]any)["g1"].(map[string]any)
	if tracker["g1_t1"] != "in-progress" {
		t.Errorf("g1_t1 = %v, want in-progress", tracker["g1_t1"])
	}
}

func TestUser_EmptyFieldsEncodeAsEmptyCollections(t *testing.T) {
	out, err := json.Marshal(profile.User{ID: "u2"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"customSyllabus":[],"id":"u2","syllabusTracker":{}}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}

func TestUser_RejectsNonObjectRecord(t *testing.T) {
	var u profile.User
	if err := json.Unmarshal([]byte(`[]`), &u); err == nil {
		t.Error("Unmarshal() should return error")
	}
}

func TestUser_ToleratesMalformedSyllabusFields(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantCustom int
		wantStatus syllabus.Status
	}{
		{"tracker is a list", `{"id":"u","syllabusTracker":[1,2]}`, 0, syllabus.StatusNotStarted},
		{"numeric status", `{"id":"u","syllabusTracker":{"g1":{"g1_t0":1,"g1_t1":"done"}}}`, 0, syllabus.StatusNotStarted},
		{"unknown status", `{"id":"u","syllabusTracker":{"g1":{"g1_t0":"finished"}}}`, 0, syllabus.StatusNotStarted},
		{"subject is a string", `{"id":"u","syllabusTracker":{"g1":"done","g2":{"g2_t0":"done"}}}`, 0, syllabus.StatusNotStarted},
		{"custom is an object", `{"id":"u","customSyllabus":{"a":1}}`, 0, syllabus.StatusNotStarted},
		{"custom entry without id", `{"id":"u","customSyllabus":[{"name":"x"},{"id":"custom_1","name":"y","protocol":"GATE"}]}`, 1, syllabus.StatusNotStarted},
		{"custom entry is a number", `{"id":"u","customSyllabus":[7,{"id":"custom_1","name":"y","protocol":"GATE"}]}`, 1, syllabus.StatusNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u profile.User
			if err := json.Unmarshal([]byte(tt.data), &u); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(u.CustomSyllabus) != tt.wantCustom {
				t.Errorf("len(CustomSyllabus) = %d, want %d", len(u.CustomSyllabus), tt.wantCustom)
			}
			if got := u.SyllabusTracker.Status("g1", "g1_t0"); got != tt.wantStatus {
				t.Errorf("g1_t0 status = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestUser_KeepsValidEntriesNextToMalformedOnes(t *testing.T) {
	var u profile.User
	data := `{"id":"u","syllabusTracker":{"g1":{"g1_t0":1,"g1_t1":"done"},"g2":"x","g3":{"g3_t0":"in-progress"}}}`
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := u.SyllabusTracker.Status("g1", "g1_t1"); got != syllabus.StatusDone {
		t.Errorf("g1_t1 status = %q, want done", got)
	}
	if got := u.SyllabusTracker.Status("g3", "g3_t0"); got != syllabus.StatusInProgress {
		t.Errorf("g3_t0 status = %q, want in-progress", got)
	}
	if _, ok := u.SyllabusTracker["g1"]["g1_t0"]; ok {
		t.Error("numeric status should be dropped")
	}
}

func TestUser_CustomTopicForms(t *testing.T) {
	var u profile.User
	data := `{"id":"u","customSyllabus":[{"id":"custom_1","name":"Math","protocol":"PLACEMENT",
		"topics":["Vectors",{"id":"ct_1","name":"Matrices"},{"title":"Limits"},[1]]}]}`
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(u.CustomSyllabus) != 1 {
		t.Fatalf("len(CustomSyllabus) = %d, want 1", len(u.CustomSyllabus))
	}
	want := []curriculum.Topic{
		{ID: "custom_1_t0", Title: "Vectors"},
		{ID: "ct_1", Title: "Matrices"},
		{ID: "custom_1_t2", Title: "Limits"},
	}
	got := u.CustomSyllabus[0].Topics
	if len(got) != len(want) {
		t.Fatalf("Topics = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Topics[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
